// Package main provides the trigger Lambda entry point for batch planning.
//
// The Lambda is invoked by S3 upload notifications. Only prompt.json uploads
// plan a batch: the planner lists the directory, derives work records for the
// processable files, writes the manifest, starts the Step Functions fan-out,
// and records the initial in_progress status. Any other key is ignored.
package main

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-file-processor/internal/fanout"
	"github.com/fpang/ai-file-processor/internal/lambdaboot"
	"github.com/fpang/ai-file-processor/internal/logging"
	"github.com/fpang/ai-file-processor/internal/metrics"
	"github.com/fpang/ai-file-processor/internal/pipeline"
)

var coldStart = true

// Planner wired at cold start.
var planner *pipeline.Planner

func init() {
	initStart := time.Now()
	logging.Init()

	clients := lambdaboot.InitAWS()
	inputStore := lambdaboot.InitStore(clients.Config, "INPUT_BUCKET_NAME")
	outputStore := lambdaboot.InitStore(clients.Config, "OUTPUT_BUCKET_NAME")
	sfnClient, sfnARN := lambdaboot.InitSFN(clients.Config, "PROCESSING_SFN_ARN")
	minBatchSize := lambdaboot.IntFromEnv("MIN_BATCH_SIZE", 0)

	planner = &pipeline.Planner{
		Input:        inputStore,
		Output:       outputStore,
		Trigger:      fanout.NewSFNTrigger(sfnClient, sfnARN),
		MinBatchSize: minBatchSize,
	}

	lambdaboot.StartupLog("trigger-lambda", initStart).
		S3Bucket("input", inputStore.Bucket()).
		S3Bucket("output", outputStore.Bucket()).
		StateMachine("processing", sfnARN).
		Config("minBatchSize", strconv.Itoa(minBatchSize)).
		Log()
}

func main() {
	lambda.Start(handler)
}

func handler(ctx context.Context, event events.S3Event) error {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "trigger-lambda").Msg("Cold start, first invocation")
	}
	log.Info().Int("records", len(event.Records)).Msg("Trigger Lambda invoked")

	for _, record := range event.Records {
		key, err := url.QueryUnescape(record.S3.Object.Key)
		if err != nil {
			log.Warn().Err(err).Str("rawKey", record.S3.Object.Key).Msg("Skipping record with undecodable key")
			continue
		}

		// Only prompt configuration uploads start a batch; data file uploads
		// under the same prefix arrive first and are picked up by the listing.
		if !strings.HasSuffix(key, "/"+pipeline.ConfigFileName) {
			log.Debug().Str("key", key).Msg("Ignoring non-configuration upload")
			continue
		}

		planStart := time.Now()
		result := planner.Plan(ctx, pipeline.UploadEvent{
			Bucket: record.S3.Bucket.Name,
			Key:    key,
		})

		m := metrics.New("AiFileProcessor").
			Dimension("Operation", "batchPlanning").
			Metric("PlanDurationMs", float64(time.Since(planStart).Milliseconds()), metrics.UnitMilliseconds).
			Metric("BatchTotalFiles", float64(result.TotalFiles), metrics.UnitCount).
			Property("directoryPath", result.DirectoryPath)
		if result.Status == pipeline.StatusError {
			m.Count("PlanErrors")
		} else {
			m.Count("PlanSuccess")
		}
		m.Flush()
	}

	// Planning failures are recorded in the directory status, never
	// propagated to Lambda retry.
	return nil
}
