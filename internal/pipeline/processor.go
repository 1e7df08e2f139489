package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-file-processor/internal/store"
)

// TranscribeRequest carries one file's bytes and the directory's prompt
// configuration to the model.
type TranscribeRequest struct {
	Prompt      string
	Data        []byte
	MIMEType    string
	MaxTokens   int
	Temperature *float64
}

// Transcription is a parsed, model-produced transcription result.
type Transcription struct {
	Text      string
	Languages []string
	Usage     TokenUsage
}

// Transcriber runs one inference call over a single file.
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscribeRequest) (*Transcription, error)
}

// Processor handles exactly one work record per invocation. Every failure is
// converted into an error outcome artifact; Process never returns an error,
// so a single bad file can never fail the fan-out branch it runs on.
type Processor struct {
	Files  store.ObjectStore
	Output store.ObjectStore
	Model  Transcriber

	// Now overrides the clock in tests. Nil means time.Now.
	Now func() time.Time
}

// Outcome is the worker's terminal result for one work record.
type Outcome struct {
	RecordID     string     `json:"record_id"`
	FileKey      string     `json:"file_key"`
	ArtifactKey  string     `json:"artifact_key,omitempty"`
	Status       string     `json:"status"`
	ErrorCode    string     `json:"error_code,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Usage        TokenUsage `json:"token_usage"`
}

// successArtifact is the persisted body of a successful outcome artifact.
type successArtifact struct {
	Transcription     string   `json:"transcription"`
	DetectedLanguages []string `json:"detected_languages"`
	FileKey           string   `json:"file_key"`
	RecordID          string   `json:"record_id"`
	Timestamp         string   `json:"timestamp"`
}

// errorArtifact is the persisted body of a failed outcome artifact.
type errorArtifact struct {
	Status       string `json:"status"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	FileKey      string `json:"file_key"`
	RecordID     string `json:"record_id"`
	Timestamp    string `json:"timestamp"`
}

// Process runs one work item to its terminal outcome, writing exactly one
// outcome artifact at {file_key}.json.
func (p *Processor) Process(ctx context.Context, item WorkItem) Outcome {
	rec := item.Record
	if rec.FileKey == "" {
		// No file key means no artifact key either; this is the one case
		// where a record terminates without an artifact.
		log.Error().Str("recordId", rec.RecordID).Msg("Work record is missing file_key")
		return Outcome{
			RecordID:     rec.RecordID,
			Status:       ProcessingError,
			ErrorCode:    KindValidation.Code(),
			ErrorMessage: "work record is missing file_key",
		}
	}

	logger := log.With().Str("recordId", rec.RecordID).Str("fileKey", rec.FileKey).Logger()

	data, err := p.Files.Get(ctx, rec.FileKey)
	if err != nil {
		return p.fail(ctx, rec, NewStoreAccessError(fmt.Sprintf("failed to read file %s", rec.FileKey), err))
	}

	result, err := p.Model.Transcribe(ctx, TranscribeRequest{
		Prompt:      rec.Prompt,
		Data:        data,
		MIMEType:    rec.ContentType,
		MaxTokens:   item.MaxTokens,
		Temperature: item.Temperature,
	})
	if err != nil {
		return p.fail(ctx, rec, err)
	}
	if err := validateTranscription(result); err != nil {
		return p.fail(ctx, rec, err)
	}

	usage := result.Usage
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}

	body, err := json.MarshalIndent(successArtifact{
		Transcription:     result.Text,
		DetectedLanguages: result.Languages,
		FileKey:           rec.FileKey,
		RecordID:          rec.RecordID,
		Timestamp:         p.timestamp(),
	}, "", "  ")
	if err != nil {
		return p.fail(ctx, rec, NewStoreAccessError("failed to encode outcome artifact", err))
	}

	artifactKey := ArtifactKey(rec.FileKey)
	meta := map[string]string{
		MetaRecordID:         rec.RecordID,
		MetaProcessingStatus: ProcessingSuccess,
		MetaInputTokens:      strconv.Itoa(usage.InputTokens),
		MetaOutputTokens:     strconv.Itoa(usage.OutputTokens),
		MetaTotalTokens:      strconv.Itoa(usage.TotalTokens),
	}
	if err := p.Output.Put(ctx, artifactKey, body, "application/json", meta); err != nil {
		return p.fail(ctx, rec, NewStoreAccessError(fmt.Sprintf("failed to write outcome artifact %s", artifactKey), err))
	}

	logger.Info().
		Int("inputTokens", usage.InputTokens).
		Int("outputTokens", usage.OutputTokens).
		Msg("File transcribed")

	return Outcome{
		RecordID:    rec.RecordID,
		FileKey:     rec.FileKey,
		ArtifactKey: artifactKey,
		Status:      ProcessingSuccess,
		Usage:       usage,
	}
}

// fail records a per-file failure as an error outcome artifact and returns the
// matching outcome. If the artifact write itself fails the outcome still
// reports the failure; the aggregator simply counts one fewer artifact.
func (p *Processor) fail(ctx context.Context, rec WorkRecord, cause error) Outcome {
	code := CodeOf(cause)
	log.Error().
		Err(cause).
		Str("recordId", rec.RecordID).
		Str("fileKey", rec.FileKey).
		Str("errorCode", code).
		Msg("File processing failed")

	artifactKey := ArtifactKey(rec.FileKey)
	body, err := json.MarshalIndent(errorArtifact{
		Status:       ProcessingError,
		ErrorCode:    code,
		ErrorMessage: cause.Error(),
		FileKey:      rec.FileKey,
		RecordID:     rec.RecordID,
		Timestamp:    p.timestamp(),
	}, "", "  ")
	if err == nil {
		meta := map[string]string{
			MetaRecordID:         rec.RecordID,
			MetaProcessingStatus: ProcessingError,
			MetaErrorCode:        code,
			MetaInputTokens:      "0",
			MetaOutputTokens:     "0",
			MetaTotalTokens:      "0",
		}
		err = p.Output.Put(ctx, artifactKey, body, "application/json", meta)
	}
	if err != nil {
		log.Error().Err(err).Str("artifactKey", artifactKey).Msg("Failed to write error outcome artifact")
	}

	return Outcome{
		RecordID:     rec.RecordID,
		FileKey:      rec.FileKey,
		ArtifactKey:  artifactKey,
		Status:       ProcessingError,
		ErrorCode:    code,
		ErrorMessage: cause.Error(),
	}
}

// validateTranscription enforces the response contract on a parsed result.
func validateTranscription(t *Transcription) error {
	if t == nil {
		return NewResponseSchemaError("model returned no transcription result", nil)
	}
	if strings.TrimSpace(t.Text) == "" {
		return NewResponseSchemaError("model response is missing the transcription text", nil)
	}
	if len(t.Languages) == 0 {
		return NewResponseSchemaError("model response contains no detected languages", nil)
	}
	return nil
}

func (p *Processor) timestamp() string {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return now().UTC().Format(time.RFC3339)
}
