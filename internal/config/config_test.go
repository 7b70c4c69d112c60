package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/docpipe/internal/pipeline"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	f, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{".txt"}, f.Reader.Extensions)
	assert.True(t, f.Reader.Normalize)
	assert.Equal(t, "utf-8", f.Reader.Encoding)
	assert.False(t, f.ContinueOnError)
	assert.Equal(t, "info", f.Log.Level)
	assert.Equal(t, "text", f.Log.Format)
	assert.Empty(t, f.Stages)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "pipeline.yaml", `
reader:
  extensions: [".txt", ".md"]
  recursive: true
  markdown: true
stages:
  - name: detect
    config:
      languages: en,de
  - name: translate
    config:
      engine: identity
      output_dir: out
continue_on_error: true
memory_db: ./memory.db
log:
  level: debug
`)
	f, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, []string{".txt", ".md"}, f.Reader.Extensions)
	assert.True(t, f.Reader.Recursive)
	assert.True(t, f.Reader.Markdown)
	assert.True(t, f.ContinueOnError)
	assert.Equal(t, "./memory.db", f.MemoryDB)
	assert.Equal(t, "debug", f.Log.Level)
	require.Len(t, f.Stages, 2)
	assert.Equal(t, []string{"detect", "translate"}, f.StageNames())
	assert.Equal(t, "identity", f.Stages[1].Config.String("engine"))
	assert.Equal(t, "en,de", f.Stages[0].Config.String("languages"))
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "pipeline.json", `{"stages":[{"name":"copy","config":{"output_dir":"copies"}}],"strict_config":true}`)
	f, err := Load(New(), path)
	require.NoError(t, err)
	assert.True(t, f.StrictConfig)
	require.Len(t, f.Stages, 1)
	assert.Equal(t, "copies", f.Stages[0].Config.String("output_dir"))
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DOCPIPE_CONTINUE_ON_ERROR", "true")
	t.Setenv("DOCPIPE_MEMORY_DB", "/tmp/env.db")
	t.Setenv("DOCPIPE_LOG_FORMAT", "json")

	f, err := Load(New(), "")
	require.NoError(t, err)
	assert.True(t, f.ContinueOnError)
	assert.Equal(t, "/tmp/env.db", f.MemoryDB)
	assert.Equal(t, "json", f.Log.Format)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(New(), filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
	t.Run("stage without name", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", "stages:\n  - config:\n      output_dir: x\n")
		_, err := Load(New(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "name")
	})
	t.Run("bad log format", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", "log:\n  format: xml\n")
		_, err := Load(New(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "format")
	})
}

func TestParseOverrides(t *testing.T) {
	got, err := ParseOverrides([]string{
		"translate.engine=identity",
		"translate.output_dir=out",
		"copy.output_dir=a=b",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]pipeline.Config{
		"translate": {"engine": "identity", "output_dir": "out"},
		"copy":      {"output_dir": "a=b"},
	}, got)

	for _, bad := range []string{"noequals", "nodot=1", ".key=1", "stage.=1"} {
		_, err := ParseOverrides([]string{bad})
		assert.True(t, errors.Is(err, ErrInvalidOverride), "input %q: %v", bad, err)
	}
}

func TestApply(t *testing.T) {
	f := &File{Stages: []StageSpec{
		{Name: "translate", Config: pipeline.Config{"engine": "lexicon", "output_dir": "out"}},
	}}
	f.Apply(map[string]pipeline.Config{
		"translate":  {"engine": "identity"},
		"vocabulary": {"min_frequency": "2"},
		"copy":       {"output_dir": "copies"},
	})

	assert.Equal(t, []string{"translate", "copy", "vocabulary"}, f.StageNames())
	assert.Equal(t, "identity", f.Stages[0].Config.String("engine"))
	assert.Equal(t, "out", f.Stages[0].Config.String("output_dir"))
	assert.Equal(t, "2", f.Stages[2].Config.String("min_frequency"))
}
