// Package plan implements the PostPlan and PostPlanState: the immutable
// ordered description of what to insert into the editor and the mutable
// per-run progress tracker that makes retries exactly-once.
package plan

// BlockType is one of the three kinds of content a run can insert.
type BlockType string

const (
	BlockText         BlockType = "text"
	BlockSectionTitle BlockType = "section_title"
	BlockImage        BlockType = "image"
)

// PlanBlock is one atomic unit of the post. Its identity (blockId)
// combines the block type, its source position and a hash of its
// content, so rebuilding a plan from the same source yields the same
// ids; moving a block to another source position changes its id.
type PlanBlock struct {
	BlockID     string
	Type        BlockType
	SourceIndex int

	// Text / SectionTitle fields.
	Text string

	// Image fields.
	ImagePath  string
	ImageIndex int // 1-based
}

// ImageIdentity returns the content-addressed identity used to dedupe
// image insertions across retries, independent of the block's own id.
func (b PlanBlock) ImageIdentity() string {
	if b.Type != BlockImage {
		return ""
	}
	return ImageIdentity(b.ImageIndex, b.ImagePath)
}

// PostPlan is the immutable ordered sequence of blocks for one run.
type PostPlan struct {
	blocks []PlanBlock
}

// Blocks returns the ordered blocks. Callers must not mutate the
// returned slice; it aliases the plan's own backing array.
func (p *PostPlan) Blocks() []PlanBlock { return p.blocks }

// Len returns the number of blocks in the plan.
func (p *PostPlan) Len() int { return len(p.blocks) }

// ImageBlocks returns the subset of blocks that are images, in plan order.
func (p *PostPlan) ImageBlocks() []PlanBlock {
	var out []PlanBlock
	for _, b := range p.blocks {
		if b.Type == BlockImage {
			out = append(out, b)
		}
	}
	return out
}

// TextLikeBlockCount returns the count of text and section_title blocks,
// used by config.InsertBlocksBudget.
func (p *PostPlan) TextLikeBlockCount() int {
	n := 0
	for _, b := range p.blocks {
		if b.Type == BlockText || b.Type == BlockSectionTitle {
			n++
		}
	}
	return n
}
