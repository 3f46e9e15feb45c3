package cli_test

import (
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/calvinalkan/rms/internal/cli"
)

func Test_Add_Then_Get_Round_Trips_When_Store_Is_New(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	assert.Equal(t, "1", c.MustRun("add", "notes", "hello world"))
	assert.Equal(t, "2", c.MustRun("add", "notes", "second"))
	assert.Equal(t, "hello world", c.MustRun("get", "notes", "1"))
	assert.Equal(t, "second", c.MustRun("get", "notes", "2"))
	assert.Equal(t, "notes", c.MustRun("stores"))
}

func Test_Add_Reads_Stdin_When_Data_Is_Omitted(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stdout, stderr, code := c.RunWithInput("line one\nline two\n", "add", "notes")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "1\n", stdout)

	stdout, _, code = c.Run("get", "--raw", "notes", "1")
	require.Equal(t, 0, code)
	assert.Equal(t, "line one\nline two\n", stdout)
}

func Test_Get_Fails_When_Store_Or_Record_Is_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stderr := c.MustFail("get", "nope", "1")
	cli.AssertContains(t, stderr, "rms: store not found")

	c.MustRun("add", "notes", "x")

	stderr = c.MustFail("get", "notes", "7")
	cli.AssertContains(t, stderr, "rms: invalid record id")

	stderr = c.MustFail("get", "notes", "abc")
	cli.AssertContains(t, stderr, `invalid record id: "abc"`)

	stderr = c.MustFail("get", "notes")
	cli.AssertContains(t, stderr, "wrong number of arguments")
}

func Test_Set_Replaces_Payload_When_Record_Exists(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("add", "notes", "short")
	c.MustRun("add", "notes", "other")

	c.MustRun("set", "notes", "1", "a much longer payload than before, spanning several units")
	assert.Equal(t, "a much longer payload than before, spanning several units", c.MustRun("get", "notes", "1"))
	assert.Equal(t, "other", c.MustRun("get", "notes", "2"))

	stdout, stderr, code := c.RunWithInput("from stdin", "set", "notes", "2")
	require.Equal(t, 0, code, stderr)
	assert.Empty(t, stdout)
	assert.Equal(t, "from stdin", c.MustRun("get", "notes", "2"))
}

func Test_Rm_Deletes_Records_When_Ids_Are_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	for _, v := range []string{"a", "b", "c", "d"} {
		c.MustRun("add", "notes", v)
	}

	c.MustRun("rm", "notes", "2", "4")
	assert.Equal(t, "1\n3", c.MustRun("ids", "notes"))

	stderr := c.MustFail("rm", "notes", "2")
	cli.AssertContains(t, stderr, "rms: invalid record id")

	// Ids of deleted records are not reissued.
	assert.Equal(t, "5", c.MustRun("add", "notes", "e"))
}

func Test_Info_Reports_Header_When_Store_Exists(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("add", "notes", "aaaa")
	c.MustRun("add", "notes", "bbbb")
	c.MustRun("add", "notes", "cccc")
	c.MustRun("rm", "notes", "2")

	out := c.MustRun("info", "notes")
	cli.AssertContains(t, out, "store=local/default/notes")
	cli.AssertContains(t, out, "mode=private")
	cli.AssertContains(t, out, "records=2")
	cli.AssertContains(t, out, "version=3")
	cli.AssertContains(t, out, "next_id=4")

	// Closing the store after rm compacted the hole away.
	cli.AssertContains(t, out, "size=112")
	cli.AssertContains(t, out, "free_blocks=0")
	cli.AssertContains(t, out, "last_modified=")
}

func Test_Export_Writes_Json_When_Store_Has_Records(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("add", "notes", "alpha")
	c.MustRun("add", "notes", "beta")
	c.MustRun("add", "notes", "gamma")
	c.MustRun("rm", "notes", "2")

	out := c.MustRun("export", "notes", "notes.json")
	cli.AssertContains(t, out, "exported 2 records to "+filepath.Join(c.Dir, "notes.json"))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "export_json", []byte(c.ReadFile("notes.json")))
}

func Test_Export_Writes_Yaml_When_Format_Is_Yaml(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("add", "notes", "alpha")
	c.MustRun("add", "notes", "")

	c.MustRun("export", "--format", "yaml", "notes", "notes.yaml")

	var doc struct {
		Store   string `yaml:"store"`
		Version int    `yaml:"version"`
		Records []struct {
			ID   int    `yaml:"id"`
			Data string `yaml:"data"`
		} `yaml:"records"`
	}

	require.NoError(t, yaml.Unmarshal([]byte(c.ReadFile("notes.yaml")), &doc))

	assert.Equal(t, "local/default/notes", doc.Store)
	assert.Equal(t, 1, doc.Version)

	got := map[int]string{}

	for _, r := range doc.Records {
		data, err := base64.StdEncoding.DecodeString(r.Data)
		require.NoError(t, err)

		got[r.ID] = string(data)
	}

	if diff := cmp.Diff(map[int]string{1: "alpha", 2: ""}, got); diff != "" {
		t.Errorf("exported records mismatch (-want +got):\n%s", diff)
	}

	stderr := c.MustFail("export", "--format", "xml", "notes", "notes.xml")
	cli.AssertContains(t, stderr, `unknown format "xml"`)
}
