package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint is the pause/resume state for one task, written to
// <scratch>/checkpoint.json after every completed chunk. Living inside
// the per-task scratch arena, it disappears with the rest of the
// scratch tree on any terminal transition.
type Checkpoint struct {
	TaskID           int64     `json:"task_id"`
	CompletedChunks  int       `json:"completed_chunks"`
	TotalChunks      int       `json:"total_chunks"`
	TranslatedUnits  []string  `json:"translated_units"`
	Timestamp        time.Time `json:"timestamp"`
}

func checkpointPath(scratchDir string) string {
	return filepath.Join(scratchDir, "checkpoint.json")
}

func saveCheckpoint(scratchDir string, cp Checkpoint) error {
	cp.Timestamp = time.Now()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(checkpointPath(scratchDir), data, 0o644)
}

// loadCheckpoint returns (nil, nil) when no checkpoint exists — a
// fresh task, not an error.
func loadCheckpoint(scratchDir string) (*Checkpoint, error) {
	data, err := os.ReadFile(checkpointPath(scratchDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}
