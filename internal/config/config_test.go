package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tff-go/tffilter/internal/config"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(`
main:
  term: xterm-256color
  lang: en_US.UTF-8
  command: ["/bin/bash"]
`))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultTermEncoding, cfg.TermEncoding)
	assert.Equal(t, config.DefaultEscTimeout, cfg.EscTimeout)
	assert.False(t, cfg.Buffering)
	assert.Equal(t, []string{"/bin/bash"}, cfg.Main.Command)
}

func TestParseFullDocument(t *testing.T) {
	cfg, err := config.Parse([]byte(`
termenc: ISO-8859-1
escTimeout: 250ms
buffering: true
main:
  term: xterm-256color
  lang: en_US.UTF-8
  command: ["/bin/zsh", "-l"]
subordinates:
  - name: pager
    term: xterm-256color
    lang: en_US.UTF-8
    command: ["less"]
`))
	require.NoError(t, err)
	assert.Equal(t, "ISO-8859-1", cfg.TermEncoding)
	assert.Equal(t, 250*time.Millisecond, cfg.EscTimeout)
	assert.True(t, cfg.Buffering)
	require.Len(t, cfg.Subordinates, 1)
	assert.Equal(t, "pager", cfg.Subordinates[0].Name)
	assert.Equal(t, []string{"less"}, cfg.Subordinates[0].Command)
}

func TestParseRejectsMissingMainCommand(t *testing.T) {
	_, err := config.Parse([]byte(`
main:
  term: xterm-256color
`))
	assert.Error(t, err)
}

func TestParseRejectsSubordinateWithoutName(t *testing.T) {
	_, err := config.Parse([]byte(`
main:
  command: ["/bin/bash"]
subordinates:
  - command: ["less"]
`))
	assert.Error(t, err)
}

func TestParseRejectsMalformedEscTimeout(t *testing.T) {
	_, err := config.Parse([]byte(`
main:
  command: ["/bin/bash"]
escTimeout: not-a-duration
`))
	assert.Error(t, err)
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	_, err := config.Parse([]byte("main: [unterminated"))
	assert.Error(t, err)
}

func TestLoadReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/tff.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
main:
  command: ["/bin/bash"]
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/bash"}, cfg.Main.Command)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/path/tff.yaml")
	assert.Error(t, err)
}
