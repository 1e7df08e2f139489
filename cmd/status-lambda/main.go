// Package main provides the status Lambda entry point for directory
// aggregation.
//
// The Lambda is invoked once per directory with the terminal completion signal
// of the processing execution. It scans the outcome artifacts under the
// directory prefix by metadata only, tallies successes, failures, and token
// usage, and writes the final status record.
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
)

var coldStart = true

// Aggregator wired at cold start.
var aggregator *pipeline.Aggregator

func init() {
	initStart := time.Now()
	logging.Init()

	clients := lambdaboot.InitAWS()
	outputStore := lambdaboot.InitStore(clients.Config, "OUTPUT_BUCKET_NAME")
	aggregator = &pipeline.Aggregator{Output: outputStore}

	lambdaboot.StartupLog("status-lambda", initStart).
		S3Bucket("output", outputStore.Bucket()).
		Log()
}

func main() {
	lambda.Start(handler)
}

func handler(ctx context.Context, sig pipeline.CompletionSignal) (*pipeline.StatusRecord, error) {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "status-lambda").Msg("Cold start, first invocation")
	}
	log.Info().
		Str("directoryPath", sig.DirectoryPath).
		Str("status", sig.Status).
		Str("executionArn", sig.ExecutionARN).
		Msg("Status Lambda invoked")

	aggStart := time.Now()
	record, err := aggregator.Aggregate(ctx, sig)

	m := metrics.New("AiFileProcessor").
		Dimension("Operation", "aggregate").
		Metric("AggregateDurationMs", float64(time.Since(aggStart).Milliseconds()), metrics.UnitMilliseconds).
		Property("directoryPath", sig.DirectoryPath)
	if err != nil {
		m.Count("AggregateErrors")
	} else {
		m.Count("AggregateSuccess")
		if record.TokenUsage != nil {
			m.Metric("BatchTotalTokens", float64(record.TokenUsage.TotalTokens), metrics.UnitCount)
		}
	}
	m.Flush()

	if err != nil {
		// The final status write failed; surface the error so the state
		// machine retries the aggregation.
		log.Error().Err(err).Str("directoryPath", sig.DirectoryPath).Msg("Aggregation failed")
		return record, err
	}
	return record, nil
}
