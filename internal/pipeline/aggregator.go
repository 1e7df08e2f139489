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

// Aggregator derives a directory's final status record from the outcome
// artifacts under its prefix. It is idempotent: re-running over the same
// artifacts produces the same counts, only the timestamp moves.
//
// Aggregation degrades instead of failing: an unreadable prior status falls
// back to zero totals, a failed listing finalizes without artifact counts,
// and a single unreadable or malformed artifact is skipped or contributes
// zero tokens. The only hard failure is the final status write itself.
type Aggregator struct {
	Output store.ObjectStore

	// Now overrides the clock in tests. Nil means time.Now.
	Now func() time.Time
}

// Aggregate scans the directory's outcome artifacts and writes the final
// status record. The returned record is the one persisted; a non-nil error
// means the final write failed (or the signal itself was invalid).
func (a *Aggregator) Aggregate(ctx context.Context, sig CompletionSignal) (*StatusRecord, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}

	dir := sig.DirectoryPath
	logger := log.With().Str("directoryPath", dir).Logger()

	prior := a.readPriorStatus(ctx, dir)

	var scanned, successful, failed, inputTokens, outputTokens int
	keys, err := a.Output.List(ctx, dir)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list outcome artifacts, finalizing without counts")
		keys = nil
	}
	for _, key := range keys {
		if !isArtifactKey(key) {
			continue
		}
		meta, err := a.Output.Head(ctx, key)
		if err != nil {
			logger.Warn().Err(err).Str("artifactKey", key).Msg("Skipping unreadable outcome artifact")
			continue
		}
		scanned++
		inputTokens += tokenCount(meta, MetaInputTokens, key)
		outputTokens += tokenCount(meta, MetaOutputTokens, key)
		switch meta[MetaProcessingStatus] {
		case ProcessingSuccess:
			successful++
		case ProcessingError:
			failed++
		default:
			logger.Warn().Str("artifactKey", key).Str("value", meta[MetaProcessingStatus]).Msg("Artifact has no recognizable processing status")
		}
	}
	totalTokens := inputTokens + outputTokens

	record := &StatusRecord{
		Status:         sig.Status,
		Message:        sig.Message,
		TotalFiles:     prior.TotalFiles,
		CompletedFiles: prior.CompletedFiles,
		Timestamp:      a.timestamp(),
		DirectoryPath:  dir,
		ExecutionARN:   sig.ExecutionARN,
		Error:          sig.Error,
	}
	if sig.Status == StatusCompleted {
		record.CompletedFiles = prior.TotalFiles
	}
	if successful+failed > 0 {
		record.SuccessfulFiles = &successful
		record.FailedFiles = &failed
	}
	if totalTokens > 0 {
		record.TokenUsage = &TokenUsage{
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			TotalTokens:  totalTokens,
		}
	}

	body, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return record, NewStoreAccessError("failed to encode final status record", err)
	}
	if err := a.Output.Put(ctx, StatusKey(dir), body, "application/json", nil); err != nil {
		return record, NewStoreAccessError(fmt.Sprintf("failed to write final status record for %s", dir), err)
	}

	logger.Info().
		Str("status", record.Status).
		Int("artifacts", scanned).
		Int("successfulFiles", successful).
		Int("failedFiles", failed).
		Int("totalTokens", totalTokens).
		Msg("Directory status finalized")

	return record, nil
}

// readPriorStatus loads the in-progress status record, falling back to an
// empty record when it is missing or unreadable.
func (a *Aggregator) readPriorStatus(ctx context.Context, dir string) StatusRecord {
	var prior StatusRecord
	body, err := a.Output.Get(ctx, StatusKey(dir))
	if err != nil {
		log.Warn().Err(err).Str("directoryPath", dir).Msg("No readable prior status record, assuming zero totals")
		return prior
	}
	if err := json.Unmarshal(body, &prior); err != nil {
		log.Warn().Err(err).Str("directoryPath", dir).Msg("Prior status record is not valid JSON, assuming zero totals")
		return StatusRecord{}
	}
	return prior
}

// isArtifactKey reports whether a key under the directory prefix is an
// outcome artifact rather than a bookkeeping object.
func isArtifactKey(key string) bool {
	return strings.HasSuffix(key, ".json") &&
		!strings.HasSuffix(key, StatusKeySuffix) &&
		!strings.HasSuffix(key, ManifestKeySuffix)
}

// tokenCount parses one token-count metadata value. Missing, non-numeric, or
// negative values contribute zero.
func tokenCount(meta map[string]string, metaKey, artifactKey string) int {
	v, ok := meta[metaKey]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		log.Warn().Str("artifactKey", artifactKey).Str("metaKey", metaKey).Str("value", v).Msg("Ignoring malformed token count")
		return 0
	}
	return n
}

func (a *Aggregator) timestamp() string {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	return now().UTC().Format(time.RFC3339)
}
