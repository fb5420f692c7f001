package plan

import "fmt"

// SourceItem is one already-ordered, already-placed item from the parsed
// source document (text/metadata parsing and image-to-section matching
// both happen upstream of the core). Image items carry their resolved
// absolute path directly.
type SourceItem struct {
	Type      BlockType
	Text      string // text / section_title payload
	ImagePath string // image payload
}

// stubText is inserted when a plan would otherwise contain no text
// blocks at all, because the editor refuses to save an empty text body.
const stubText = "."

// BuildPlan derives a PostPlan from ordered source items, assigning
// content-addressed blockIds and sequential imageIndexes. If the source
// contains only image blocks, a synthetic stub text block is prepended.
func BuildPlan(items []SourceItem) (*PostPlan, error) {
	blocks := make([]PlanBlock, 0, len(items)+1)
	hasText := false
	imageIndex := 0

	for i, item := range items {
		switch item.Type {
		case BlockText, BlockSectionTitle:
			hasText = true
			normalized := NormalizeText(item.Text)
			blocks = append(blocks, PlanBlock{
				BlockID:     BlockID(item.Type, i, normalized),
				Type:        item.Type,
				SourceIndex: i,
				Text:        normalized,
			})
		case BlockImage:
			imageIndex++
			resolved, err := resolveImagePath(item.ImagePath)
			if err != nil {
				return nil, fmt.Errorf("image block at source index %d: %w", i, err)
			}
			blocks = append(blocks, PlanBlock{
				BlockID:     BlockID(BlockImage, i, ImageIdentity(imageIndex, resolved)),
				Type:        BlockImage,
				SourceIndex: i,
				ImagePath:   resolved,
				ImageIndex:  imageIndex,
			})
		default:
			return nil, fmt.Errorf("unknown block type %q at source index %d", item.Type, i)
		}
	}

	if !hasText && len(blocks) > 0 {
		stub := PlanBlock{
			BlockID:     BlockID(BlockText, -1, stubText),
			Type:        BlockText,
			SourceIndex: -1,
			Text:        stubText,
		}
		blocks = append([]PlanBlock{stub}, blocks...)
	}

	return &PostPlan{blocks: blocks}, nil
}
