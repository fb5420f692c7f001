package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devconsole/naverpost-agent/internal/errs"
)

func TestAcquireLock_FirstAcquisitionSucceeds(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AcquireLock(dir, "job-1", "run-1", "hash-a", DefaultLockTTL))
}

func TestAcquireLock_DuplicateDifferentRunFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AcquireLock(dir, "job-1", "run-1", "hash-a", DefaultLockTTL))

	err := AcquireLock(dir, "job-1", "run-2", "hash-a", DefaultLockTTL)
	require.Error(t, err)
	ie, ok := errs.AsIdempotency(err)
	require.True(t, ok)
	assert.Equal(t, "DUP_RUN_DETECTED", ie.ReasonCode)
}

func TestAcquireLock_SameRunMismatchedHashFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AcquireLock(dir, "job-1", "run-1", "hash-a", DefaultLockTTL))

	err := AcquireLock(dir, "job-1", "run-1", "hash-b", DefaultLockTTL)
	require.Error(t, err)
	ie, ok := errs.AsIdempotency(err)
	require.True(t, ok)
	assert.Equal(t, "RUN_ID_MISMATCH_RETRY_BLOCKED", ie.ReasonCode)
}

func TestAcquireLock_MatchingRetrySucceeds(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AcquireLock(dir, "job-1", "run-1", "hash-a", DefaultLockTTL))
	require.NoError(t, AcquireLock(dir, "job-1", "run-1", "hash-a", DefaultLockTTL))
}

func TestAcquireLock_ReclaimsStaleLock(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AcquireLock(dir, "job-1", "run-1", "hash-a", 1*time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, AcquireLock(dir, "job-1", "run-2", "hash-b", 1*time.Millisecond))
}

func TestReleaseLock_ThenReacquireSucceeds(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AcquireLock(dir, "job-1", "run-1", "hash-a", DefaultLockTTL))
	require.NoError(t, ReleaseLock(dir, "job-1"))
	require.NoError(t, AcquireLock(dir, "job-1", "run-2", "hash-b", DefaultLockTTL))
}

func TestContentHash_Deterministic(t *testing.T) {
	assert.Equal(t, ContentHash("payload"), ContentHash("payload"))
	assert.NotEqual(t, ContentHash("payload-a"), ContentHash("payload-b"))
}
