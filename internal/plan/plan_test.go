package plan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeText_CollapsesNewlinesAndStripsZeroWidth(t *testing.T) {
	in := "Hello​ world\n\n\n\nfoo\uFEFF"
	got := NormalizeText(in)
	assert.Equal(t, "Hello world\n\nfoo", got)
}

func TestNormalizeText_Idempotent(t *testing.T) {
	in := "line one\n\n\nline two‍"
	once := NormalizeText(in)
	twice := NormalizeText(once)
	assert.Equal(t, once, twice)
}

func TestBuildPlan_StubTextPrependedWhenImageOnly(t *testing.T) {
	p, err := BuildPlan([]SourceItem{
		{Type: BlockImage, ImagePath: "/tmp/a.jpg"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, p.Len())
	assert.Equal(t, BlockText, p.Blocks()[0].Type)
	assert.Equal(t, BlockImage, p.Blocks()[1].Type)
}

func TestBuildPlan_NoStubWhenTextPresent(t *testing.T) {
	p, err := BuildPlan([]SourceItem{
		{Type: BlockText, Text: "hello"},
		{Type: BlockImage, ImagePath: "/tmp/a.jpg"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, p.Len())
}

func TestBuildPlan_RejectsRelativeImagePath(t *testing.T) {
	_, err := BuildPlan([]SourceItem{{Type: BlockImage, ImagePath: "relative/a.jpg"}})
	require.Error(t, err)
}

func TestBuildPlan_DeterministicBlockIDsAcrossRuns(t *testing.T) {
	items := []SourceItem{
		{Type: BlockSectionTitle, Text: "Parking"},
		{Type: BlockText, Text: "We parked at the garage."},
		{Type: BlockImage, ImagePath: "/tmp/a.jpg"},
	}
	p1, err := BuildPlan(items)
	require.NoError(t, err)
	p2, err := BuildPlan(items)
	require.NoError(t, err)

	for i := range p1.Blocks() {
		assert.Equal(t, p1.Blocks()[i].BlockID, p2.Blocks()[i].BlockID)
	}
}

func TestExecuteExactlyOnce_OneInvocationPerBlockAcrossRetries(t *testing.T) {
	p, err := BuildPlan([]SourceItem{
		{Type: BlockText, Text: "first"},
		{Type: BlockText, Text: "second"},
	})
	require.NoError(t, err)
	state := NewState()

	invocations := map[string]int{}
	runner := func(ctx context.Context, b PlanBlock) error {
		invocations[b.BlockID]++
		return nil
	}

	_, err = ExecuteExactlyOnce(context.Background(), p, state, runner)
	require.NoError(t, err)

	// Retry the whole plan: every block should be skipped as a dup.
	results, err := ExecuteExactlyOnce(context.Background(), p, state, runner)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, OutcomeDup, r.Outcome)
	}
	for _, count := range invocations {
		assert.Equal(t, 1, count)
	}
}

func TestExecuteExactlyOnce_FailureLeavesStateUnmutated(t *testing.T) {
	p, err := BuildPlan([]SourceItem{{Type: BlockText, Text: "will fail"}})
	require.NoError(t, err)
	state := NewState()

	boom := errors.New("boom")
	_, err = ExecuteExactlyOnce(context.Background(), p, state, func(ctx context.Context, b PlanBlock) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, state.InsertedBlockCount())
}

func TestExecuteExactlyOnce_ImageIdentityTracksWithBlock(t *testing.T) {
	p, err := BuildPlan([]SourceItem{
		{Type: BlockImage, ImagePath: "/tmp/a.jpg"},
		{Type: BlockImage, ImagePath: "/tmp/b.jpg"},
	})
	require.NoError(t, err)
	state := NewState()

	_, err = ExecuteExactlyOnce(context.Background(), p, state, func(ctx context.Context, b PlanBlock) error {
		return nil
	})
	require.NoError(t, err)
	// BuildPlan prepended a stub text block, so 3 blocks total, 2 images.
	assert.Equal(t, 3, state.InsertedBlockCount())
	assert.LessOrEqual(t, state.InsertedImageCount(), len(p.ImageBlocks()))
	assert.Equal(t, 2, state.InsertedImageCount())
}
