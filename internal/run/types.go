package run

import (
	"encoding/json"
	"time"
)

// State is the lifecycle state of a run.
//
// A run is created as StateRunning and transitions to StateSuccess or
// StateFail exactly once, driven by backend reconciliation. Both are terminal.
type State string

const (
	StateRunning State = "running"
	StateSuccess State = "success"
	StateFail    State = "fail"

	// StateUnknown is reported by a backend that cannot yet determine the
	// execution state (e.g., the log file has not been written). It is never
	// persisted; the stored status stays at StateRunning.
	StateUnknown State = "unknown"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFail
}

// Execution targets.
const (
	TargetLocal = "local"
	TargetBatch = "aws"
)

// Whitelists for submission fields.
var (
	ExecutionTargets   = []string{TargetLocal, TargetBatch}
	SourceNames        = []string{"local", "s3", "dandi"}
	SourceDataTypes    = []string{"nwb", "spikeglx"}
	OutputDestinations = []string{"local", "s3", "dandi"}

	// Sorters with a published worker image.
	SorterNames = []string{"kilosort2", "kilosort25", "kilosort3", "ironclust", "spykingcircus"}
)

// SubmitRequest is an incoming run submission.
//
// The stage parameter blocks (recording, preprocessing, sorter,
// postprocessing, curation, visualization) are schema-less: the orchestration
// layer never interprets them, it only forwards them to the pipeline worker.
type SubmitRequest struct {
	RunAt          string `json:"runAt"`
	RunIdentifier  string `json:"runIdentifier,omitempty"`
	RunDescription string `json:"runDescription,omitempty"`

	SourceName      string            `json:"sourceName"`
	SourceDataType  string            `json:"sourceDataType"`
	SourceDataPaths map[string]string `json:"sourceDataPaths,omitempty"`

	// Catalog-backed locator: when set (and no direct paths are given), the
	// coordinator resolves a concrete URL through the data catalog before
	// building the job specification.
	DandisetID       string `json:"dandisetId,omitempty"`
	DandisetFilePath string `json:"dandisetFilePath,omitempty"`

	RecordingKwargs      map[string]any `json:"recordingKwargs,omitempty"`
	PreprocessingKwargs  map[string]any `json:"preprocessingKwargs,omitempty"`
	SorterName           string         `json:"sorterName"`
	SorterKwargs         map[string]any `json:"sorterKwargs,omitempty"`
	PostprocessingKwargs map[string]any `json:"postprocessingKwargs,omitempty"`
	CurationKwargs       map[string]any `json:"curationKwargs,omitempty"`
	VisualizationKwargs  map[string]any `json:"visualizationKwargs,omitempty"`

	OutputDestination string `json:"outputDestination"`
	OutputPath        string `json:"outputPath"`

	TestWithToyRecording    bool `json:"testWithToyRecording,omitempty"`
	TestWithSubRecording    bool `json:"testWithSubRecording,omitempty"`
	TestSubRecordingNFrames int  `json:"testSubRecordingNFrames,omitempty"`
	LogToFile               bool `json:"logToFile,omitempty"`
}

// SubmitResponse acknowledges a submission. It only ever confirms that the
// run was submitted; success is knowable only via a later status query.
type SubmitResponse struct {
	Message       string `json:"message"`
	RunIdentifier string `json:"runIdentifier"`
}

// DataSource is a named descriptor of where raw input data lives.
// Immutable after creation.
type DataSource struct {
	ID              string
	Name            string
	Description     string
	UserID          string
	SourceName      string
	SourceDataType  string
	SourceDataPaths map[string]string
	RecordingKwargs map[string]any
}

// Run is one execution attempt of the pipeline against a DataSource.
// Only Status and Logs are mutable, and only through reconciliation.
type Run struct {
	ID           string
	Identifier   string // caller-supplied or synthesized; unique per user
	Description  string
	RunAt        string
	LastRunAt    time.Time
	Status       State
	DataSourceID string
	UserID       string
	Config       json.RawMessage // serialized job specification
	Logs         string          // empty until captured
	OutputPath   string
}

// RunView is the caller-facing projection of a run, produced by reconciliation.
type RunView struct {
	RunIdentifier string    `json:"runIdentifier"`
	Description   string    `json:"description,omitempty"`
	RunAt         string    `json:"runAt"`
	Status        State     `json:"status"`
	Logs          string    `json:"logs,omitempty"`
	OutputPath    string    `json:"outputPath,omitempty"`
	DatasetName   string    `json:"datasetName,omitempty"`
	LastRunAt     time.Time `json:"lastRunAt"`
}

// ListResponse is the response for listing runs.
type ListResponse struct {
	Runs []RunView `json:"runs"`
}
