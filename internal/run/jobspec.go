package run

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"sortruns/internal/apperrors"
)

// JobSpec is the backend-agnostic parameter bundle for one pipeline run.
// It is built once per submission, owned by the coordinator for the duration
// of one dispatch, and passed by value to the chosen backend.
type JobSpec struct {
	RunIdentifier  string `json:"run_identifier"`
	RunDescription string `json:"run_description"`
	RunAt          string `json:"run_at"`

	SourceName      string            `json:"source_name"`
	SourceDataType  string            `json:"source_data_type"`
	SourceDataPaths map[string]string `json:"source_data_paths"`

	RecordingKwargs      map[string]any `json:"recording_kwargs"`
	PreprocessingKwargs  map[string]any `json:"preprocessing_kwargs"`
	SorterName           string         `json:"sorter_name"`
	SorterKwargs         map[string]any `json:"sorter_kwargs"`
	PostprocessingKwargs map[string]any `json:"postprocessing_kwargs"`
	CurationKwargs       map[string]any `json:"curation_kwargs"`
	VisualizationKwargs  map[string]any `json:"visualization_kwargs"`

	OutputDestination string `json:"output_destination"`
	OutputPath        string `json:"output_path"`
	// Derived from OutputPath when the destination is S3.
	OutputBucket string `json:"-"`
	OutputPrefix string `json:"-"`

	TestWithToyRecording    bool `json:"test_with_toy_recording"`
	TestWithSubRecording    bool `json:"test_with_subrecording"`
	TestSubRecordingNFrames int  `json:"test_subrecording_n_frames"`
	LogToFile               bool `json:"log_to_file"`
}

// BuildJobSpec validates a submission and assembles the job specification.
// It is a pure transformation: no record is created and no backend is
// contacted. All failures are apperrors.Validation.
func BuildJobSpec(req *SubmitRequest) (*JobSpec, error) {
	if req.RunIdentifier == "" {
		return nil, apperrors.Validation("runIdentifier", "run identifier is required")
	}
	if !slices.Contains(ExecutionTargets, req.RunAt) {
		return nil, apperrors.ValidationAllowed("runAt", req.RunAt, ExecutionTargets...)
	}
	if !slices.Contains(SourceNames, req.SourceName) {
		return nil, apperrors.ValidationAllowed("sourceName", req.SourceName, SourceNames...)
	}
	if !slices.Contains(SourceDataTypes, req.SourceDataType) {
		return nil, apperrors.ValidationAllowed("sourceDataType", req.SourceDataType, SourceDataTypes...)
	}
	if len(req.SourceDataPaths) == 0 && !req.TestWithToyRecording {
		return nil, apperrors.Validation("sourceDataPaths", "at least one source data path is required")
	}
	if !slices.Contains(SorterNames, req.SorterName) {
		return nil, apperrors.ValidationAllowed("sorterName", req.SorterName, SorterNames...)
	}
	if !slices.Contains(OutputDestinations, req.OutputDestination) {
		return nil, apperrors.ValidationAllowed("outputDestination", req.OutputDestination, OutputDestinations...)
	}

	spec := &JobSpec{
		RunIdentifier:           req.RunIdentifier,
		RunDescription:          req.RunDescription,
		RunAt:                   req.RunAt,
		SourceName:              req.SourceName,
		SourceDataType:          req.SourceDataType,
		SourceDataPaths:         req.SourceDataPaths,
		RecordingKwargs:         req.RecordingKwargs,
		PreprocessingKwargs:     req.PreprocessingKwargs,
		SorterName:              req.SorterName,
		SorterKwargs:            req.SorterKwargs,
		PostprocessingKwargs:    req.PostprocessingKwargs,
		CurationKwargs:          req.CurationKwargs,
		VisualizationKwargs:     req.VisualizationKwargs,
		OutputDestination:       req.OutputDestination,
		OutputPath:              req.OutputPath,
		TestWithToyRecording:    req.TestWithToyRecording,
		TestWithSubRecording:    req.TestWithSubRecording,
		TestSubRecordingNFrames: req.TestSubRecordingNFrames,
		LogToFile:               req.LogToFile,
	}

	if req.OutputDestination == "s3" {
		bucket, prefix, err := SplitS3Path(req.OutputPath)
		if err != nil {
			return nil, err
		}
		spec.OutputBucket = bucket
		spec.OutputPrefix = prefix
	}

	return spec, nil
}

// SplitS3Path splits an s3://bucket/prefix URI into bucket and key prefix.
func SplitS3Path(path string) (bucket, prefix string, err error) {
	const scheme = "s3://"
	if !strings.HasPrefix(path, scheme) {
		return "", "", apperrors.Validation("outputPath",
			fmt.Sprintf("output path %q is not a valid S3 path, e.g. s3://bucket/results", path))
	}
	rest := strings.TrimPrefix(path, scheme)
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", apperrors.Validation("outputPath",
			fmt.Sprintf("output path %q is missing a bucket", path))
	}
	return bucket, prefix, nil
}

// Environment variable names consumed by the pipeline worker. The full job
// specification travels to both backends as these fixed, JSON-valued
// variables.
const (
	EnvRunKwargs            = "SI_RUN_KWARGS"
	EnvSourceDataKwargs     = "SI_SOURCE_DATA_KWARGS"
	EnvRecordingKwargs      = "SI_RECORDING_KWARGS"
	EnvPreprocessingKwargs  = "SI_PREPROCESSING_KWARGS"
	EnvSorterKwargs         = "SI_SORTER_KWARGS"
	EnvPostprocessingKwargs = "SI_POSTPROCESSING_KWARGS"
	EnvCurationKwargs       = "SI_CURATION_KWARGS"
	EnvVisualizationKwargs  = "SI_VISUALIZATION_KWARGS"
	EnvOutputDataKwargs     = "SI_OUTPUT_DATA_KWARGS"
)

// Environment serializes the specification into the worker's environment
// contract. Keys are fixed; every value is a JSON document.
func (s *JobSpec) Environment() (map[string]string, error) {
	runKwargs := map[string]any{
		"run_at":                     s.RunAt,
		"run_identifier":             s.RunIdentifier,
		"run_description":            s.RunDescription,
		"test_with_toy_recording":    s.TestWithToyRecording,
		"test_with_subrecording":     s.TestWithSubRecording,
		"test_subrecording_n_frames": s.TestSubRecordingNFrames,
		"log_to_file":                s.LogToFile,
	}
	sourceKwargs := map[string]any{
		"source_name":       s.SourceName,
		"source_data_type":  s.SourceDataType,
		"source_data_paths": s.SourceDataPaths,
	}
	sorterKwargs := map[string]any{
		"sorter_name":   s.SorterName,
		"sorter_kwargs": s.SorterKwargs,
	}
	outputKwargs := map[string]any{
		"output_destination": s.OutputDestination,
		"output_path":        s.OutputPath,
	}

	env := make(map[string]string, 9)
	for key, value := range map[string]any{
		EnvRunKwargs:            runKwargs,
		EnvSourceDataKwargs:     sourceKwargs,
		EnvRecordingKwargs:      orEmpty(s.RecordingKwargs),
		EnvPreprocessingKwargs:  orEmpty(s.PreprocessingKwargs),
		EnvSorterKwargs:         sorterKwargs,
		EnvPostprocessingKwargs: orEmpty(s.PostprocessingKwargs),
		EnvCurationKwargs:       orEmpty(s.CurationKwargs),
		EnvVisualizationKwargs:  orEmpty(s.VisualizationKwargs),
		EnvOutputDataKwargs:     outputKwargs,
	} {
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", key, err)
		}
		env[key] = string(data)
	}
	return env, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
