package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-file-processor/internal/store"
)

// Trigger starts the external fan-out for a planned batch and returns an
// execution handle. The production implementation starts a Step Functions
// execution whose Map state invokes the worker once per record.
type Trigger interface {
	StartFanOut(ctx context.Context, input FanOutInput) (string, error)
}

// Planner builds a directory batch from an upload event: it enumerates the
// processable files under the prefix, derives one work record per file,
// persists the manifest, triggers the fan-out, and writes the initial status
// record. Every entry returns a terminal PlanResult; planning failures set a
// terminal error status and never trigger fan-out.
type Planner struct {
	Input   store.ObjectStore
	Output  store.ObjectStore
	Trigger Trigger

	// MinBatchSize rejects directories with fewer processable files than the
	// threshold without fanning out. Zero disables the policy.
	MinBatchSize int

	// Now overrides the clock in tests. Nil means time.Now.
	Now func() time.Time
}

// PlanResult is the terminal outcome of one planning call.
type PlanResult struct {
	DirectoryPath string `json:"directory_path"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	TotalFiles    int    `json:"total_files"`
	ExecutionARN  string `json:"execution_arn,omitempty"`
}

// Plan processes one upload event end to end.
func (p *Planner) Plan(ctx context.Context, event UploadEvent) *PlanResult {
	if err := event.Validate(); err != nil {
		// No valid directory unit exists, so there is no status record to
		// fail; the event itself is rejected.
		log.Error().Err(err).Str("bucket", event.Bucket).Str("key", event.Key).Msg("Upload event rejected")
		return &PlanResult{Status: StatusError, Message: err.Error()}
	}

	dir := event.DirectoryPath()
	logger := log.With().Str("directoryPath", dir).Logger()

	cfgBody, err := p.Input.Get(ctx, event.Key)
	if err != nil {
		return p.failDirectory(ctx, dir, fmt.Sprintf("failed to read prompt configuration: %v", err))
	}

	var cfg PromptConfig
	if err := json.Unmarshal(cfgBody, &cfg); err != nil {
		return p.failDirectory(ctx, dir, fmt.Sprintf("prompt configuration is not valid JSON: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		return p.failDirectory(ctx, dir, err.Error())
	}

	keys, err := p.Input.List(ctx, dir)
	if err != nil {
		return p.failDirectory(ctx, dir, fmt.Sprintf("failed to list directory: %v", err))
	}

	var fileKeys []string
	for _, key := range keys {
		if key == event.Key || strings.HasSuffix(key, "/") || IsBookkeepingKey(key) {
			continue
		}
		if strings.Count(key, "/") != 1 {
			logger.Debug().Str("key", key).Msg("Skipping nested key, single directory level only")
			continue
		}
		if _, ok := ContentTypeFor(key); !ok {
			logger.Debug().Str("key", key).Msg("Skipping file with unsupported extension")
			continue
		}
		fileKeys = append(fileKeys, key)
	}

	if len(fileKeys) == 0 {
		logger.Warn().Int("listedKeys", len(keys)).Msg("No processable files found after filtering")
		return p.failDirectory(ctx, dir, "No processable files found in directory")
	}

	if p.MinBatchSize > 0 && len(fileKeys) < p.MinBatchSize {
		logger.Warn().Int("files", len(fileKeys)).Int("minBatchSize", p.MinBatchSize).Msg("Directory below minimum batch size")
		result := p.failDirectory(ctx, dir, fmt.Sprintf("Directory has %d processable files, below the minimum batch size of %d", len(fileKeys), p.MinBatchSize))
		result.TotalFiles = len(fileKeys)
		return result
	}

	records := make([]WorkRecord, 0, len(fileKeys))
	for _, key := range fileKeys {
		ct, _ := ContentTypeFor(key)
		records = append(records, WorkRecord{
			RecordID:    DeriveRecordID(key),
			FileKey:     key,
			Bucket:      event.Bucket,
			Prompt:      cfg.Prompt,
			FileFormat:  FileFormat(key),
			ContentType: ct,
		})
	}

	manifest := Manifest{DirectoryPath: dir, Records: records}
	manifestBody, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return p.failDirectory(ctx, dir, fmt.Sprintf("failed to encode manifest: %v", err))
	}
	if err := p.Output.Put(ctx, ManifestKey(dir), manifestBody, "application/json", nil); err != nil {
		return p.failDirectory(ctx, dir, fmt.Sprintf("failed to write manifest: %v", err))
	}

	executionARN, err := p.Trigger.StartFanOut(ctx, FanOutInput{
		DirectoryPath: dir,
		MaxTokens:     cfg.MaxTokens,
		Temperature:   cfg.Temperature,
		Records:       records,
	})
	if err != nil {
		return p.failDirectory(ctx, dir, fmt.Sprintf("failed to start processing: %v", err))
	}

	status := StatusRecord{
		Status:         StatusInProgress,
		Message:        fmt.Sprintf("Processing %d files", len(records)),
		TotalFiles:     len(records),
		CompletedFiles: 0,
		Timestamp:      p.timestamp(),
		DirectoryPath:  dir,
		ExecutionARN:   executionARN,
	}
	if err := p.writeStatus(ctx, status); err != nil {
		// The execution is already running; the status record will be
		// superseded by the aggregator either way.
		logger.Error().Err(err).Msg("Failed to write initial status record")
	}

	logger.Info().
		Int("totalFiles", len(records)).
		Str("executionArn", executionARN).
		Msg("Batch planned and fan-out started")

	return &PlanResult{
		DirectoryPath: dir,
		Status:        StatusInProgress,
		Message:       status.Message,
		TotalFiles:    len(records),
		ExecutionARN:  executionARN,
	}
}

// failDirectory writes a terminal error status for the directory and returns
// the matching PlanResult. Fan-out is never triggered on this path.
func (p *Planner) failDirectory(ctx context.Context, dir, msg string) *PlanResult {
	log.Error().Str("directoryPath", dir).Str("error", msg).Msg("Batch planning failed")
	status := StatusRecord{
		Status:         StatusError,
		Message:        msg,
		TotalFiles:     0,
		CompletedFiles: 0,
		Timestamp:      p.timestamp(),
		DirectoryPath:  dir,
	}
	if err := p.writeStatus(ctx, status); err != nil {
		log.Error().Err(err).Str("directoryPath", dir).Msg("Failed to write error status record")
	}
	return &PlanResult{DirectoryPath: dir, Status: StatusError, Message: msg}
}

func (p *Planner) writeStatus(ctx context.Context, status StatusRecord) error {
	body, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status record: %w", err)
	}
	return p.Output.Put(ctx, StatusKey(status.DirectoryPath), body, "application/json", nil)
}

func (p *Planner) timestamp() string {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return now().UTC().Format(time.RFC3339)
}
