package plan

import "context"

// PostPlanState is the mutable per-run progress tracker. Created once
// per run and discarded after; never shared across runs.
type PostPlanState struct {
	insertedBlockIDs map[string]bool
	insertedImageIDs map[string]bool
}

// NewState creates an empty PostPlanState for one run.
func NewState() *PostPlanState {
	return &PostPlanState{
		insertedBlockIDs: make(map[string]bool),
		insertedImageIDs: make(map[string]bool),
	}
}

// HasInsertedBlock reports whether blockID has already been observed
// inserted in this run.
func (s *PostPlanState) HasInsertedBlock(blockID string) bool {
	return s.insertedBlockIDs[blockID]
}

// InsertedBlockCount returns the number of distinct blocks recorded so
// far, for report assembly.
func (s *PostPlanState) InsertedBlockCount() int { return len(s.insertedBlockIDs) }

// InsertedImageCount returns the number of distinct image identities
// recorded so far.
func (s *PostPlanState) InsertedImageCount() int { return len(s.insertedImageIDs) }

// markInserted records a successful insertion. PostPlanState is not
// safe for concurrent use: the whole run is one logical task with no
// parallel insertion.
func (s *PostPlanState) markInserted(block PlanBlock) {
	s.insertedBlockIDs[block.BlockID] = true
	if block.Type == BlockImage {
		s.insertedImageIDs[block.ImageIdentity()] = true
	}
}

// DedupeOutcome describes what executeExactlyOnce did with one block.
type DedupeOutcome string

const (
	OutcomeInserted DedupeOutcome = "inserted"
	OutcomeDup      DedupeOutcome = "DUP_BY_RETRY"
)

// StepResult is emitted by ExecuteExactlyOnce for each block in the plan.
type StepResult struct {
	Block   PlanBlock
	Outcome DedupeOutcome
}

// Runner inserts a single block into the editor, returning an error on
// failure. It must not mutate PostPlanState; ExecuteExactlyOnce owns
// that side effect.
type Runner func(ctx context.Context, block PlanBlock) error

// ExecuteExactlyOnce iterates the plan in order, invoking runner exactly
// once per unique blockId regardless of how many times the caller
// retries an interrupted run. Blocks whose id is already in
// insertedBlockIds, and image blocks whose image identity is already in
// insertedImageIds, are skipped with a DUP_BY_RETRY record. On the first
// runner failure, the state is left unmutated for that block and the
// error propagates immediately, halting the walk.
func ExecuteExactlyOnce(ctx context.Context, p *PostPlan, s *PostPlanState, runner Runner) ([]StepResult, error) {
	results := make([]StepResult, 0, p.Len())
	for _, block := range p.Blocks() {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if s.HasInsertedBlock(block.BlockID) || (block.Type == BlockImage && s.insertedImageIDs[block.ImageIdentity()]) {
			results = append(results, StepResult{Block: block, Outcome: OutcomeDup})
			continue
		}
		if err := runner(ctx, block); err != nil {
			return results, err
		}
		s.markInserted(block)
		results = append(results, StepResult{Block: block, Outcome: OutcomeInserted})
	}
	return results, nil
}
