// Package main provides the worker Lambda entry point for per-file processing.
//
// The worker is invoked once per work record by the Step Functions Map state.
// It downloads the file, runs one Gemini transcription call, and writes exactly
// one outcome artifact next to the file key in the output bucket. Failures are
// recorded as error artifacts; the handler never returns an error, so a single
// bad file can never fail its fan-out branch.
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-file-processor/internal/lambdaboot"
	"github.com/fpang/ai-file-processor/internal/logging"
	"github.com/fpang/ai-file-processor/internal/metrics"
	"github.com/fpang/ai-file-processor/internal/pipeline"
	"github.com/fpang/ai-file-processor/internal/transcribe"
)

var coldStart = true

// Processor wired at cold start.
var processor *pipeline.Processor

func init() {
	initStart := time.Now()
	logging.Init()

	clients := lambdaboot.InitAWS()
	inputStore := lambdaboot.InitStore(clients.Config, "INPUT_BUCKET_NAME")
	outputStore := lambdaboot.InitStore(clients.Config, "OUTPUT_BUCKET_NAME")
	apiKey := lambdaboot.LoadGeminiKey(clients.SSM)

	geminiClient, err := transcribe.NewClient(context.Background(), apiKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	modelName := logging.EnvOrDefault("GEMINI_MODEL", transcribe.DefaultModelName)

	processor = &pipeline.Processor{
		Files:  inputStore,
		Output: outputStore,
		Model: &transcribe.GeminiModel{
			Client:    geminiClient,
			ModelName: modelName,
		},
	}

	lambdaboot.StartupLog("worker-lambda", initStart).
		S3Bucket("input", inputStore.Bucket()).
		S3Bucket("output", outputStore.Bucket()).
		Config("model", modelName).
		Log()
}

func main() {
	lambda.Start(handler)
}

func handler(ctx context.Context, item pipeline.WorkItem) (pipeline.Outcome, error) {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "worker-lambda").Msg("Cold start, first invocation")
	}
	log.Info().
		Str("recordId", item.Record.RecordID).
		Str("fileKey", item.Record.FileKey).
		Str("fileFormat", item.Record.FileFormat).
		Msg("Worker Lambda invoked")

	jobStart := time.Now()
	outcome := processor.Process(ctx, item)

	m := metrics.New("AiFileProcessor").
		Dimension("Operation", "fileProcessing").
		Metric("FileDurationMs", float64(time.Since(jobStart).Milliseconds()), metrics.UnitMilliseconds).
		Property("recordId", outcome.RecordID).
		Property("fileKey", outcome.FileKey)
	if outcome.Status == pipeline.ProcessingSuccess {
		m.Count("FileSuccess")
	} else {
		m.Count("FileErrors").Property("errorCode", outcome.ErrorCode)
	}
	m.Flush()

	// The outcome artifact is the durable result; the return value only feeds
	// the Map state output.
	return outcome, nil
}
