package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogWriterTeesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletsearch.log")
	var out bytes.Buffer

	w := logWriter(Config{File: FileConfig{Path: path, MaxSizeMB: 1}}, &out)
	logger := zerolog.New(w)
	logger.Info().Str("wallet", "0xabc").Msg("verdict recorded")

	assert.Contains(t, out.String(), `"wallet":"0xabc"`)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "verdict recorded")
}

func TestLogWriterConsole(t *testing.T) {
	var out bytes.Buffer
	w := logWriter(Config{Format: "console"}, &out)
	_, ok := w.(zerolog.ConsoleWriter)
	assert.True(t, ok)
}
