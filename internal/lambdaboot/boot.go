// Package lambdaboot provides shared Lambda cold-start bootstrap logic.
//
// Every Lambda in the pipeline needs some subset of: AWS config, S3 stores,
// Step Functions, SSM parameter fetch, and startup logging. This package
// extracts the common init patterns so each Lambda's init() is a short
// composition of helpers.
package lambdaboot

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-file-processor/internal/logging"
	"github.com/fpang/ai-file-processor/internal/store"
)

// AWSClients holds the core AWS SDK clients used across Lambdas.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitStore creates an S3-backed object store over the bucket named by the
// given environment variable. Fatals if the env var is empty.
func InitStore(cfg aws.Config, bucketEnvVar string) *store.S3Store {
	bucket := os.Getenv(bucketEnvVar)
	if bucket == "" {
		log.Fatal().Str("envVar", bucketEnvVar).Msg("Bucket environment variable is required")
	}
	return store.NewS3Store(s3.NewFromConfig(cfg), bucket)
}

// InitSFN creates a Step Functions client and reads the state machine ARN
// from the given environment variable. Fatals if the env var is empty.
func InitSFN(cfg aws.Config, arnEnvVar string) (*sfn.Client, string) {
	arn := os.Getenv(arnEnvVar)
	if arn == "" {
		log.Fatal().Str("envVar", arnEnvVar).Msg("State machine ARN environment variable is required")
	}
	return sfn.NewFromConfig(cfg), arn
}

// LoadGeminiKey fetches the Gemini API key from SSM Parameter Store if not
// already set via GEMINI_API_KEY env var, and returns it. Fatals on error.
func LoadGeminiKey(ssmClient *ssm.Client) string {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key
	}
	paramName := os.Getenv("SSM_API_KEY_PARAM")
	if paramName == "" {
		paramName = "/ai-file-processor/prod/gemini-api-key"
	}
	ssmStart := time.Now()
	result, err := ssmClient.GetParameter(context.Background(), &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		log.Fatal().Err(err).Str("param", paramName).Msg("Failed to read API key from SSM")
	}
	key := *result.Parameter.Value
	os.Setenv("GEMINI_API_KEY", key)
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(ssmStart)).Msg("Gemini API key loaded from SSM")
	return key
}

// IntFromEnv reads a non-negative integer from the environment, returning the
// fallback when unset. Fatals on a malformed value.
func IntFromEnv(envVar string, fallback int) int {
	raw := os.Getenv(envVar)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		log.Fatal().Str("envVar", envVar).Str("value", raw).Msg("Environment variable must be a non-negative integer")
	}
	return n
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
