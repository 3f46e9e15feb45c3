package cli_test

import (
	"bytes"
	"os"
	"testing"

	"github.com/calvinalkan/rms/internal/cli"
)

func Test_Invalid_Global_Flag_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("--invalid-flag", "stores")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stdout, ""; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stderr, "unknown flag")
	cli.AssertContains(t, stderr, "--invalid-flag")
	cli.AssertContains(t, stderr, "Options:")
	cli.AssertContains(t, stderr, "--cwd")
	cli.AssertContains(t, stderr, "--store-dir")
}

func Test_Empty_Store_Dir_Flag_Is_Ignored_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	// An empty flag value means "not set", so the default applies.
	out := c.MustRun("--store-dir=", "print-config")
	cli.AssertContains(t, out, "store_dir="+c.StoreDir())
}

func Test_Bare_Command_Prints_Usage_When_Invoked(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	exitCode := cli.Run(nil, &stdout, &stderr, []string{"rmsctl", "--cwd", t.TempDir()}, nil, nil)

	if got, want := exitCode, 0; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stderr.String(), ""; got != want {
		t.Errorf("stderr=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stdout.String(), "rmsctl - inspect and edit record stores")
	cli.AssertContains(t, stdout.String(), "--cwd")
	cli.AssertContains(t, stdout.String(), "add <store> [data]")
	cli.AssertContains(t, stdout.String(), "shell <store> [flags]")
}

func Test_Unknown_Command_Fails_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("frobnicate")

	cli.AssertContains(t, stderr, "unknown command: frobnicate")
	cli.AssertContains(t, stderr, "Commands:")
}

func Test_Command_Help_Prints_Flags_When_Requested(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	out := c.MustRun("add", "--help")

	cli.AssertContains(t, out, "Usage: rmsctl add <store> [data]")
	cli.AssertContains(t, out, "--mode")
	cli.AssertContains(t, out, "--owner-vendor")
}

func Test_Command_Bad_Flag_Prints_Help_To_Stderr_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("get", "--nope", "s", "1")

	cli.AssertContains(t, stderr, "unknown flag: --nope")
	cli.AssertContains(t, stderr, "Usage: rmsctl get <store> <id> [flags]")
}

func Test_Invalid_Config_File_Fails_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile(".rms.json", `{"store_dir": ""}`)

	stderr := c.MustFail("stores")
	cli.AssertContains(t, stderr, "store_dir")
}

func Test_Init_Writes_Config_When_Absent(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	out := c.MustRun("init")
	cli.AssertContains(t, out, "wrote ")

	content := c.ReadFile(".rms.json")
	cli.AssertContains(t, content, `"store_dir": ".rms"`)
	cli.AssertContains(t, content, `"vendor": "local"`)

	stderr := c.MustFail("init")
	cli.AssertContains(t, stderr, "already exists")

	c.MustRun("init", "--force")
}

func Test_Print_Config_Shows_Sources_When_Project_File_Exists(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	out := c.MustRun("print-config")
	cli.AssertContains(t, out, "(defaults only)")
	cli.AssertContains(t, out, "vendor=local")
	cli.AssertContains(t, out, "log_level=warn")

	c.WriteFile(".rms.json", `{
		// project settings
		"vendor": "acme",
		"quota_bytes": 4096,
	}`)

	out = c.MustRun("--suite", "tools", "print-config")
	cli.AssertContains(t, out, "vendor=acme")
	cli.AssertContains(t, out, "suite=tools")
	cli.AssertContains(t, out, "quota_bytes=4096")
	cli.AssertContains(t, out, "project_config=")
}

func Test_Quota_From_Config_Limits_Store_When_Set(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile(".rms.json", `{"quota_bytes": 128}`)

	c.MustRun("add", "s", "small")

	big := make([]byte, 200)
	for i := range big {
		big[i] = 'x'
	}

	stderr := c.MustFail("add", "s", string(big))
	cli.AssertContains(t, stderr, "rms: full")
}

func Test_Store_Dir_Is_Created_Under_Cwd_When_First_Store_Is_Added(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("add", "notes", "x")

	entries, err := os.ReadDir(c.StoreDir())
	if err != nil {
		t.Fatalf("read store dir: %v", err)
	}

	if len(entries) != 1 || entries[0].Name() != "local" {
		t.Fatalf("store dir entries=%v, want [local]", entries)
	}
}
