package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestMarkdownJSONRoundTrip(t *testing.T) {
	md := "# News\n\n* one\n* two\n\nSee [docs](https://docs.example.com)\n"
	js, _, err := run(t, md, "to-json", "-")
	require.NoError(t, err)
	assert.Contains(t, js, `"type":"doc"`)

	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(js), 0o644))

	back, _, err := run(t, "", "to-md", path)
	require.NoError(t, err)
	assert.Equal(t, md, back)

	html, _, err := run(t, "", "to-html", path)
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>News</h1>")
	assert.Contains(t, html, "https://docs.example.com")
}

func TestToJSONFrontMatter(t *testing.T) {
	out, _, err := run(t, "---\ntitle: Weekly\n---\ntext\n", "to-json", "--front-matter", "-")
	require.NoError(t, err)
	assert.Contains(t, out, `"front_matter":{"title":"Weekly"}`)
	assert.Contains(t, out, `"doc":{`)
}

func TestValidateCommand(t *testing.T) {
	out, _, err := run(t, `{"postId":"p1","opens":10,"clicks":3,"unsubscribes":0,"recordedAt":"2024-01-02T03:04:05Z"}`, "validate", "metric", "-")
	require.NoError(t, err)
	assert.Equal(t, "metric is valid\n", out)

	_, errOut, err := run(t, `{"postId":"p1","opens":1,"clicks":3,"recordedAt":"2024-01-02T03:04:05Z"}`, "validate", "metric", "-")
	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.Contains(t, errOut, "Metric.Clicks")

	_, _, err = run(t, `{}`, "validate", "invoice", "-")
	assert.Error(t, err)

	_, _, err = run(t, "", "to-md", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
