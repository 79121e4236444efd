package pipeline

import "github.com/kaelin-dev/subtrans/internal/subscodec"

const (
	defaultCharBudget = 3000
	maxUnitsPerChunk  = 50
)

// Chunk is a non-overlapping, order-preserving sublist of dialogue
// units sent as one LLM request.
type Chunk struct {
	Units []subscodec.Unit
}

// BuildChunks splits units by a character budget per chunk (default
// ~3,000 characters) capped at 50 units, never splitting a single unit
// across chunks.
func BuildChunks(units []subscodec.Unit) []Chunk {
	var chunks []Chunk
	var current []subscodec.Unit
	chars := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, Chunk{Units: current})
			current = nil
			chars = 0
		}
	}

	for _, u := range units {
		if len(current) > 0 && (chars+len(u.Text) > defaultCharBudget || len(current) >= maxUnitsPerChunk) {
			flush()
		}
		current = append(current, u)
		chars += len(u.Text)
	}
	flush()
	return chunks
}
