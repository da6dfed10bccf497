package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/colloquy"
	"github.com/poiesic/colloquy/agent"
	"github.com/poiesic/colloquy/ai/mock"
	"github.com/poiesic/colloquy/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAssistant(t *testing.T) *colloquy.Assistant {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	a, err := colloquy.New(cfg, colloquy.WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestConsole(t *testing.T) {
	a := newTestAssistant(t)
	csvPath := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("item,price\na,2\nb,4\n"), 0o600))

	input := strings.Join([]string{
		"hello there",
		"",
		"/upload",
		"/upload " + filepath.Join(t.TempDir(), "notes.txt"),
		"/upload " + csvPath,
		"QUIT",
		"never asked",
	}, "\n")

	var out bytes.Buffer
	err := newConsole(a, "s1", &out).Run(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "mock reply to: hello there")
	assert.Contains(t, text, "usage: /upload")
	assert.Contains(t, text, "error:")
	assert.Contains(t, text, "prices.csv: dataset with 2 rows (item, price)")
	assert.NotContains(t, text, "never asked")
	assert.Equal(t, agent.ModeTabularTool, a.Mode("s1"))

	history, err := a.History("s1")
	require.NoError(t, err)
	assert.Len(t, history, 4, "persona, one turn and the dataset announcement")
}

func TestConsole_Reset(t *testing.T) {
	a := newTestAssistant(t)
	var out bytes.Buffer
	err := newConsole(a, "s1", &out).Run(context.Background(), strings.NewReader("hi\n/reset\n"))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Conversation cleared.")

	history, err := a.History("s1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestConsole_EndOfInput(t *testing.T) {
	a := newTestAssistant(t)
	var out bytes.Buffer
	for _, word := range []string{"sair", "exit"} {
		require.NoError(t, newConsole(a, "s1", &out).Run(context.Background(), strings.NewReader(word+"\n")))
	}
	require.NoError(t, newConsole(a, "s1", &out).Run(context.Background(), strings.NewReader("")))

	history, err := a.History("s1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
