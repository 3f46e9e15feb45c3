package cli_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/rms/internal/cli"
)

func Test_Shell_Runs_Commands_When_Input_Is_Piped(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	input := "add hello world\n" +
		"add second\n" +
		"\n" +
		"get 1\n" +
		"set 2 second, longer this time\n" +
		"get 2\n" +
		"rm 1\n" +
		"ids\n" +
		"count\n" +
		"quit\n" +
		"add never reached\n"

	stdout, stderr, code := c.RunWithInput(input, "shell", "--create", "notes")
	require.Equal(t, 0, code, stderr)
	assert.Empty(t, stderr)

	assert.Equal(t, "1\n2\nhello world\nsecond, longer this time\n2\n1\n", stdout)
	assert.Equal(t, "2", c.MustRun("ids", "notes"))
}

func Test_Shell_Reports_Errors_And_Continues_When_Command_Fails(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("add", "notes", "x")

	stdout, stderr, code := c.RunWithInput("get 9\nbogus\ncount\n", "shell", "notes")
	require.Equal(t, 0, code)

	assert.Equal(t, "1\n", stdout)
	cli.AssertContains(t, stderr, "error: record 9: rms: invalid record id")
	cli.AssertContains(t, stderr, `unknown command "bogus"`)
}

func Test_Shell_Prints_Notifications_When_Watching(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stdout, stderr, code := c.RunWithInput("add a\nset 1 b\nrm 1\n", "shell", "--create", "--watch", "notes")
	require.Equal(t, 0, code, stderr)

	assert.Equal(t, "* added 1\n1\n* changed 1\n* deleted 1\n", stdout)
}

func Test_Shell_Compacts_When_Asked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stdout, stderr, code := c.RunWithInput("add aaaa\nadd bbbb\nadd cccc\nrm 2\ninfo\ncompact\ninfo\n", "shell", "--create", "notes")
	require.Equal(t, 0, code, stderr)

	cli.AssertContains(t, stdout, "local/default/notes mode=private records=2 version=3 size=144 free=32\n")
	cli.AssertContains(t, stdout, "local/default/notes mode=private records=2 version=3 size=112 free=0\n")
}

func Test_Shell_Fails_When_Store_Is_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("shell", "notes")
	cli.AssertContains(t, stderr, "rms: store not found")
}
