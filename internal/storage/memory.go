package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"coalsim/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

// MemoryStore keeps runs in memory. Graphs are held encoded, as they would
// be on disk.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	graphs      map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.graphs = make(map[string][]byte)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return err
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, scenario string) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		if scenario == "" || run.Scenario == scenario {
			out = append(out, run)
		}
	}
	sortRuns(out)
	return out, nil
}

func (s *MemoryStore) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, id)
	delete(s.graphs, id)
	return nil
}

func (s *MemoryStore) SaveGraph(_ context.Context, graph model.GraphRecord) error {
	blob, err := EncodeGraph(graph)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.graphs[graph.RunID] = blob
	return nil
}

func (s *MemoryStore) GetGraph(_ context.Context, runID string) (model.GraphRecord, bool, error) {
	s.mu.RLock()
	blob, ok := s.graphs[runID]
	s.mu.RUnlock()

	if !ok {
		return model.GraphRecord{}, false, nil
	}
	graph, err := DecodeGraph(blob)
	if err != nil {
		return model.GraphRecord{}, false, err
	}
	return graph, true, nil
}

func sortRuns(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.Before(runs[j].StartedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}
