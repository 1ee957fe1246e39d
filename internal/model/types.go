package model

import (
	"time"

	"coalsim/internal/tables"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord summarises one finished simulation run.
type RunRecord struct {
	VersionedRecord
	ID        string    `json:"id"`
	Scenario  string    `json:"scenario"`
	Replicate int       `json:"replicate"`
	Seed      int64     `json:"seed"`
	Model     string    `json:"model"`
	Status    string    `json:"status"`
	Time      float64   `json:"time"`
	StartedAt time.Time `json:"started_at"`
	Elapsed   float64   `json:"elapsed_seconds"`

	Events                 int `json:"events"`
	CommonAncestors        int `json:"common_ancestors"`
	RejectedCommonAncestor int `json:"rejected_common_ancestors"`
	Recombinations         int `json:"recombinations"`
	Migrations             int `json:"migrations"`
	Generations            int `json:"generations"`

	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
	Trees int `json:"trees"`

	ErrorCode int    `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// GraphRecord is the full node and edge output of a run.
type GraphRecord struct {
	VersionedRecord
	RunID          string             `json:"run_id"`
	SequenceLength float64            `json:"sequence_length"`
	Nodes          []tables.Node      `json:"nodes"`
	Edges          []tables.Edge      `json:"edges"`
	Migrations     []tables.Migration `json:"migrations,omitempty"`
}
