package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lorewiki/internal/app"
	"github.com/scrypster/lorewiki/internal/config"
	"github.com/scrypster/lorewiki/internal/logger"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"title", []string{"-world", "eldoria", "-title", "The Iron Gate"}, ""},
		{"import", []string{"-world", "eldoria", "-import", "./lore", "-overwrite"}, ""},
		{"design only", []string{"-world", "eldoria", "-design", "a drowned empire"}, ""},
		{"missing world", []string{"-title", "X"}, "-world is required"},
		{"bad world name", []string{"-world", "../etc", "-title", "X"}, "invalid world name"},
		{"nothing to do", []string{"-world", "eldoria"}, "nothing to do"},
		{"backup only", []string{"-world", "eldoria", "-backup"}, ""},
		{"title and import", []string{"-world", "eldoria", "-title", "X", "-import", "d"}, "mutually exclusive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArgs(tt.args, io.Discard)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	o, err := parseArgs([]string{"-world", "eldoria", "-import", "./lore", "-overwrite"}, io.Discard)
	require.NoError(t, err)
	assert.True(t, o.Overwrite)
	assert.Equal(t, "./lore", o.ImportDir)
}

func TestSeed_ImportCreatesWorld(t *testing.T) {
	cfg := &config.Config{
		Storage: config.StorageConfig{Engine: "sqlite", WorldsPath: t.TempDir()},
		LLM:     config.LLMConfig{Provider: "ollama", Model: "llama3", OllamaURL: "http://127.0.0.1:1", Timeout: time.Second},
		Image:   config.ImageConfig{Workers: 1, QueueSize: 1},
		Engine:  config.EngineConfig{MaxValidations: 1, SimilarityTopK: 3, NeighborhoodHops: 1},
		Backup:  config.BackupConfig{Dir: t.TempDir(), Interval: time.Hour},
	}
	a, err := app.New(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	lore := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(lore, "iron-gate.md"), []byte(
		"---\ntitle: The Iron Gate\nyear: 412\n---\nThe gate of [[Vel Harun]] was forged in fire.\n"), 0o644))

	var out bytes.Buffer
	err = seed(context.Background(), a, options{World: "eldoria", Description: "A test world", ImportDir: lore, Backup: true}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "created world eldoria")
	assert.Contains(t, out.String(), "backed up to ")
	assert.Contains(t, out.String(), "imported 1, updated 0, skipped 0, failed 0 of 1 files")

	assert.True(t, a.Registry.Exists("eldoria"))
	art, err := a.Engine.Lookup(context.Background(), "eldoria", "The Iron Gate")
	require.NoError(t, err)
	assert.Contains(t, art.Content, "Vel Harun")
	assert.NotContains(t, art.Content, "[[")

	// A second run reuses the world and skips the existing article.
	out.Reset()
	err = seed(context.Background(), a, options{World: "eldoria", ImportDir: lore}, &out)
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "created world")
	assert.Contains(t, out.String(), "skipped 1")
}
