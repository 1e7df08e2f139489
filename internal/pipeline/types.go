// Package pipeline implements the directory-scoped transcription pipeline core:
// batch planning, per-file outcome handling, and directory status aggregation.
//
// A directory (an object-store key prefix, exactly one level deep) is the unit
// of processing. Uploading a prompt configuration to {directory}/prompt.json
// plans a batch over every processable file under the prefix, a Step Functions
// fan-out runs one inference call per file, each invocation writes exactly one
// outcome artifact, and a completion signal triggers aggregation into the
// directory's status record.
package pipeline

import (
	"fmt"
	"strings"
)

// Directory status values. Transitions are monotonic:
// pending → in_progress → {completed|error}.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// ConfigFileName is the prompt configuration object name inside a directory.
const ConfigFileName = "prompt.json"

// Key suffixes for the bookkeeping objects that share the directory prefix.
// Listings must exclude both so they are never mistaken for outcome artifacts.
const (
	StatusKeySuffix   = "_status.json"
	ManifestKeySuffix = "_manifest.json"
)

// Outcome artifact metadata keys. All values are strings; the aggregator reads
// these without downloading artifact bodies.
const (
	MetaRecordID         = "record-id"
	MetaProcessingStatus = "processing-status"
	MetaInputTokens      = "input-tokens"
	MetaOutputTokens     = "output-tokens"
	MetaTotalTokens      = "total-tokens"
	MetaErrorCode        = "error-code"
)

// Per-file processing status values stored in artifact metadata.
const (
	ProcessingSuccess = "success"
	ProcessingError   = "error"
)

// StatusKey returns the status record key for a directory path.
func StatusKey(directoryPath string) string {
	return directoryPath + StatusKeySuffix
}

// ManifestKey returns the work manifest key for a directory path.
func ManifestKey(directoryPath string) string {
	return directoryPath + ManifestKeySuffix
}

// ArtifactKey returns the outcome artifact key for a file key.
func ArtifactKey(fileKey string) string {
	return fileKey + ".json"
}

// PromptConfig is the shared, immutable prompt configuration for one directory.
type PromptConfig struct {
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Validate checks the required fields of a parsed prompt configuration.
func (c *PromptConfig) Validate() error {
	if strings.TrimSpace(c.Prompt) == "" {
		return NewValidationError("prompt configuration is missing the required 'prompt' field")
	}
	if c.MaxTokens < 0 {
		return NewValidationError(fmt.Sprintf("max_tokens must not be negative, got %d", c.MaxTokens))
	}
	return nil
}

// WorkRecord is one file's unit of inference work. Created once per
// processable file by the planner and consumed exactly once by the processor.
type WorkRecord struct {
	RecordID    string `json:"record_id"`
	FileKey     string `json:"file_key"`
	Bucket      string `json:"bucket"`
	Prompt      string `json:"prompt"`
	FileFormat  string `json:"file_format"`
	ContentType string `json:"content_type"`
}

// Manifest is the ordered work record set for one directory batch, persisted
// at {directory_path}_manifest.json in the output bucket.
type Manifest struct {
	DirectoryPath string       `json:"directory_path"`
	Records       []WorkRecord `json:"records"`
}

// FanOutInput is the Step Functions execution input. The Map state iterates
// Records and invokes the worker once per record; MaxTokens and Temperature
// ride alongside so the shared prompt configuration reaches every invocation.
type FanOutInput struct {
	DirectoryPath string       `json:"directory_path"`
	MaxTokens     int          `json:"max_tokens,omitempty"`
	Temperature   *float64     `json:"temperature,omitempty"`
	Records       []WorkRecord `json:"records"`
}

// WorkItem is the worker Lambda's input: one record plus the directory's
// generation settings, as emitted by the Map state.
type WorkItem struct {
	Record      WorkRecord `json:"record"`
	MaxTokens   int        `json:"max_tokens,omitempty"`
	Temperature *float64   `json:"temperature,omitempty"`
}

// TokenUsage is the aggregated token consumption for a directory.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// StatusRecord is the directory-level progress/result record, persisted at
// {directory_path}_status.json. It is the sole source of truth for callers.
//
// SuccessfulFiles, FailedFiles, and TokenUsage are pointers so their absence
// survives serialization: a missing field means "not computed", never zero.
type StatusRecord struct {
	Status          string      `json:"status"`
	Message         string      `json:"message"`
	TotalFiles      int         `json:"total_files"`
	CompletedFiles  int         `json:"completed_files"`
	SuccessfulFiles *int        `json:"successful_files,omitempty"`
	FailedFiles     *int        `json:"failed_files,omitempty"`
	TokenUsage      *TokenUsage `json:"token_usage,omitempty"`
	Timestamp       string      `json:"timestamp"`
	DirectoryPath   string      `json:"directory_path"`
	ExecutionARN    string      `json:"execution_arn,omitempty"`
	Error           string      `json:"error,omitempty"`
}

// UploadEvent is the validated trigger input: an upload notification naming
// the bucket and key of a prompt configuration object.
type UploadEvent struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Validate enforces the ingress contract: a prompt.json object exactly one
// directory level deep.
func (e *UploadEvent) Validate() error {
	if e.Bucket == "" {
		return NewValidationError("upload event is missing the bucket name")
	}
	if e.Key == "" {
		return NewValidationError("upload event is missing the object key")
	}
	if !strings.HasSuffix(e.Key, "/"+ConfigFileName) {
		return NewValidationError(fmt.Sprintf("object %q is not a directory prompt configuration", e.Key))
	}
	if strings.Count(e.Key, "/") != 1 {
		return NewValidationError(fmt.Sprintf("object %q is nested more than one directory level deep", e.Key))
	}
	return nil
}

// DirectoryPath returns the directory prefix (with trailing slash) that the
// prompt configuration belongs to. Valid only after Validate.
func (e *UploadEvent) DirectoryPath() string {
	idx := strings.LastIndex(e.Key, "/")
	return e.Key[:idx+1]
}

// CompletionSignal is the terminal signal delivered once all fan-out units
// for a directory have finished (or the execution failed or was cancelled).
type CompletionSignal struct {
	DirectoryPath string `json:"directory_path"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	ExecutionARN  string `json:"execution_arn,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Validate enforces the ingress contract for completion signals.
func (s *CompletionSignal) Validate() error {
	if s.DirectoryPath == "" {
		return NewValidationError("completion signal is missing directory_path")
	}
	if s.Status != StatusCompleted && s.Status != StatusError {
		return NewValidationError(fmt.Sprintf("completion signal status %q is not terminal", s.Status))
	}
	return nil
}
