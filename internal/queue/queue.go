// Package queue defines the Source contract the serve command polls for
// work, and a filesystem-backed implementation. Production deployments
// feed jobs from a Telegram-backed pipeline that lives outside this
// repository; this package exists so the serve command has a real,
// runnable source to drive the orchestrator end to end without
// vendoring a Telegram client.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Job is one unit of work: a post to assemble and submit.
type Job struct {
	RunID      string   `json:"run_id"`
	AccountID  string   `json:"account_id"`
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	TextBlocks []string `json:"text_blocks"`
	ImagePaths []string `json:"image_paths"`
	Mode       string   `json:"mode"`
	Place      string   `json:"place,omitempty"`
}

// Source is polled by the serve command for the next job to run.
type Source interface {
	Next(ctx context.Context) (*Job, error)
	Ack(ctx context.Context, runID string) error
}

// FileQueue polls a directory for "*.json" job files, processing them
// in lexical (thus timestamp-prefixed) order and moving each to a
// "processed" subdirectory on Ack.
type FileQueue struct {
	Dir string
}

func NewFileQueue(dir string) *FileQueue { return &FileQueue{Dir: dir} }

// Next returns the oldest unprocessed job file, or nil if none are
// queued.
func (q *FileQueue) Next(ctx context.Context) (*Job, error) {
	entries, err := os.ReadDir(q.Dir)
	if err != nil {
		return nil, fmt.Errorf("read queue dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)

	data, err := os.ReadFile(filepath.Join(q.Dir, names[0]))
	if err != nil {
		return nil, fmt.Errorf("read job file %s: %w", names[0], err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parse job file %s: %w", names[0], err)
	}
	return &job, nil
}

// Ack moves the processed job file into a "processed" subdirectory so
// Next never returns it again.
func (q *FileQueue) Ack(ctx context.Context, runID string) error {
	entries, err := os.ReadDir(q.Dir)
	if err != nil {
		return fmt.Errorf("read queue dir: %w", err)
	}
	processedDir := filepath.Join(q.Dir, "processed")
	if err := os.MkdirAll(processedDir, 0o755); err != nil {
		return fmt.Errorf("create processed dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(q.Dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var job Job
		if json.Unmarshal(data, &job) == nil && job.RunID == runID {
			dest := filepath.Join(processedDir, fmt.Sprintf("%d-%s", time.Now().UnixNano(), e.Name()))
			return os.Rename(path, dest)
		}
	}
	return fmt.Errorf("job with run_id %q not found for ack", runID)
}
