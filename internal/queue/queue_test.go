package queue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeJob(t *testing.T, dir, name string, job Job) {
	t.Helper()
	data, err := json.Marshal(job)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestFileQueue_NextReturnsNilWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	q := NewFileQueue(dir)
	job, err := q.Next(context.Background())
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestFileQueue_NextReturnsOldestLexically(t *testing.T) {
	dir := t.TempDir()
	writeJob(t, dir, "002.json", Job{RunID: "second"})
	writeJob(t, dir, "001.json", Job{RunID: "first"})
	q := NewFileQueue(dir)
	job, err := q.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, "first", job.RunID)
}

func TestFileQueue_AckMovesFileToProcessed(t *testing.T) {
	dir := t.TempDir()
	writeJob(t, dir, "001.json", Job{RunID: "first"})
	q := NewFileQueue(dir)

	require.NoError(t, q.Ack(context.Background(), "first"))

	job, err := q.Next(context.Background())
	require.NoError(t, err)
	require.Nil(t, job)

	entries, err := os.ReadDir(filepath.Join(dir, "processed"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFileQueue_AckUnknownRunIDErrors(t *testing.T) {
	dir := t.TempDir()
	q := NewFileQueue(dir)
	require.Error(t, q.Ack(context.Background(), "missing"))
}
