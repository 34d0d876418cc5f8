package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-scanner/internal/processor"
	"resume-scanner/internal/storage"
	"resume-scanner/internal/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	configPath, latestOut, queryLimit = "", "", 5
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestLatest_PrintsAndWritesLastRecord(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "extracted_resumes.json")
	sink := storage.NewFlatFileSink(archive)
	_, err := sink.Append(context.Background(), types.StructuredRecord{"name": "Old"})
	require.NoError(t, err)
	_, err = sink.Append(context.Background(), types.StructuredRecord{"name": "Ada Lovelace", "skills": []interface{}{"Go"}})
	require.NoError(t, err)

	cfg := writeConfig(t, "llm:\n  api_key: test-key\nsink:\n  mode: flat\n  archive_path: "+archive+"\n")
	out := filepath.Join(dir, "extracted_resume.json")

	stdout, _, err := execute(t, "latest", "-c", cfg, "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "\"name\": \"Ada Lovelace\"")
	assert.Contains(t, stdout, "\n    \"skills\"")
	assert.NotContains(t, stdout, "Old")

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, stdout, string(written))
}

func TestLatest_EmptyArchive(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "missing.json")
	cfg := writeConfig(t, "llm:\n  api_key: test-key\nsink:\n  archive_path: "+archive+"\n")

	_, _, err := execute(t, "latest", "-c", cfg)
	assert.ErrorIs(t, err, storage.ErrArchiveEmpty)
}

func TestLatest_RequiresFlatMode(t *testing.T) {
	cfg := writeConfig(t, "llm:\n  api_key: test-key\nembedding:\n  api_key: embed-key\nsink:\n  mode: indexed\n")

	_, _, err := execute(t, "latest", "-c", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink.mode=flat")
}

func TestLoadConfig_MissingCredential(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("LLM_API_KEY", "")
	cfg := writeConfig(t, "sink:\n  mode: flat\n")

	_, _, err := execute(t, "latest", "-c", cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, processor.ErrConfigurationFailure)
	assert.Equal(t, processor.KindMissingCredential, processor.KindOf(err))
}

func TestScan_RejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.docx")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0o644))

	_, _, err := execute(t, "scan", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "只支持PDF文件")
}

func TestWriteRecord_FourSpaceIndent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRecord(&buf, types.StructuredRecord{"name": "A&B"}))
	assert.Equal(t, "{\n    \"name\": \"A&B\"\n}\n", buf.String())
}
