package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const batchesDir = "batches"

// BatchRecord describes one invocation that ran every replicate of a
// scenario.
type BatchRecord struct {
	ID             string           `json:"id"`
	Scenario       string           `json:"scenario"`
	Seed           int64            `json:"seed"`
	Replicates     int              `json:"replicates"`
	Workers        int              `json:"workers"`
	StartedAtUTC   string           `json:"started_at_utc,omitempty"`
	CompletedAtUTC string           `json:"completed_at_utc,omitempty"`
	RunIDs         []string         `json:"run_ids,omitempty"`
	Failures       []string         `json:"failures,omitempty"`
	Summary        ReplicateSummary `json:"summary"`
	TMRCAProfile   []ProfilePoint   `json:"tmrca_profile,omitempty"`
}

func WriteBatch(baseDir string, batch BatchRecord) error {
	if batch.ID == "" {
		return fmt.Errorf("batch id is required")
	}
	path := batchPath(baseDir, batch.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func ReadBatch(baseDir, id string) (BatchRecord, bool, error) {
	if id == "" {
		return BatchRecord{}, false, fmt.Errorf("batch id is required")
	}
	data, err := os.ReadFile(batchPath(baseDir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return BatchRecord{}, false, nil
		}
		return BatchRecord{}, false, err
	}
	var batch BatchRecord
	if err := json.Unmarshal(data, &batch); err != nil {
		return BatchRecord{}, false, err
	}
	return batch, true, nil
}

// ListBatches returns every batch under baseDir, newest first. Batches without
// a start time sort last.
func ListBatches(baseDir string) ([]BatchRecord, error) {
	root := filepath.Join(baseDir, batchesDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return []BatchRecord{}, nil
		}
		return nil, err
	}

	batches := make([]BatchRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		batch, ok, err := ReadBatch(baseDir, entry.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		batches = append(batches, batch)
	}
	sort.Slice(batches, func(i, j int) bool {
		switch {
		case batches[i].StartedAtUTC == batches[j].StartedAtUTC:
			return batches[i].ID < batches[j].ID
		case batches[i].StartedAtUTC == "":
			return false
		case batches[j].StartedAtUTC == "":
			return true
		default:
			return batches[i].StartedAtUTC > batches[j].StartedAtUTC
		}
	})
	return batches, nil
}

func batchPath(baseDir, id string) string {
	return filepath.Join(baseDir, batchesDir, id, "batch.json")
}
