package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devconsole/naverpost-agent/internal/errs"
)

// lockRecord is the on-disk contents of one idempotency lock file.
type lockRecord struct {
	RunID       string    `json:"run_id"`
	ContentHash string    `json:"content_hash"`
	AcquiredAt  time.Time `json:"acquired_at"`
}

// DefaultLockTTL is the staleness threshold after which a lock file is
// reclaimed rather than treated as held.
const DefaultLockTTL = 30 * time.Minute

// ContentHash derives the content hash used to distinguish a genuine
// retry (same runId, same payload) from a mismatched retry attempt.
func ContentHash(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:16]
}

// AcquireLock exclusively creates a lock file for jobKey under dir.
// Stale locks older than ttl are reclaimed. An acquisition by a
// different runId while the lock is held fails with DUP_RUN_DETECTED; a
// retry presenting the same runId but a different contentHash fails with
// RUN_ID_MISMATCH_RETRY_BLOCKED; a matching retry succeeds silently. The
// lock file records no insertion progress, so a retry that starts with a
// fresh PostPlanState runs every block of its plan again.
func AcquireLock(dir, jobKey, runID, contentHash string, ttl time.Duration) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	path := filepath.Join(dir, jobKey+".lock")

	data, err := json.Marshal(lockRecord{RunID: runID, ContentHash: contentHash, AcquiredAt: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal lock record: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		defer f.Close()
		_, werr := f.Write(data)
		return werr
	}
	if !os.IsExist(err) {
		return fmt.Errorf("open lock file: %w", err)
	}

	existing, readErr := readLock(path)
	if readErr != nil {
		return fmt.Errorf("read existing lock: %w", readErr)
	}

	if time.Since(existing.AcquiredAt) > ttl {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("reclaim stale lock: %w", err)
		}
		return AcquireLock(dir, jobKey, runID, contentHash, ttl)
	}

	if existing.RunID == runID && existing.ContentHash == contentHash {
		return nil
	}
	if existing.RunID == runID {
		return &errs.IdempotencyError{ReasonCode: "RUN_ID_MISMATCH_RETRY_BLOCKED", Detail: "content hash differs from the held lock"}
	}
	return &errs.IdempotencyError{ReasonCode: "DUP_RUN_DETECTED", Detail: fmt.Sprintf("job %q already locked by run %q", jobKey, existing.RunID)}
}

// ReleaseLock removes the lock file for jobKey, called once the run
// reaches a terminal state.
func ReleaseLock(dir, jobKey string) error {
	path := filepath.Join(dir, jobKey+".lock")
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func readLock(path string) (lockRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lockRecord{}, err
	}
	var rec lockRecord
	err = json.Unmarshal(data, &rec)
	return rec, err
}
