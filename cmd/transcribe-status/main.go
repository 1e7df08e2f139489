// Package main provides the transcribe-status CLI for inspecting pipeline
// results: directory status records, outcome artifacts, and transcriptions.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/ai-file-processor/internal/logging"
	"github.com/fpang/ai-file-processor/internal/pipeline"
	"github.com/fpang/ai-file-processor/internal/store"
)

// CLI flags
var (
	bucketFlag string
	jsonFlag   bool
)

// rootCmd is the main Cobra command for the transcribe-status CLI.
var rootCmd = &cobra.Command{
	Use:   "transcribe-status",
	Short: "Inspect transcription pipeline status and results",
	Long: `transcribe-status reads the output bucket of the transcription pipeline and
shows directory status records, per-file outcome artifacts, and transcriptions.

Examples:
  transcribe-status status invoices/
  transcribe-status artifacts invoices/
  transcribe-status show invoices/receipt-01.pdf
  transcribe-status status invoices/ --json`,
}

var statusCmd = &cobra.Command{
	Use:   "status <directory>",
	Short: "Show a directory's status record",
	Args:  cobra.ExactArgs(1),
	Run:   runStatus,
}

var artifactsCmd = &cobra.Command{
	Use:   "artifacts <directory>",
	Short: "List a directory's outcome artifacts with their metadata",
	Args:  cobra.ExactArgs(1),
	Run:   runArtifacts,
}

var showCmd = &cobra.Command{
	Use:   "show <file-key>",
	Short: "Print the outcome artifact for one file",
	Args:  cobra.ExactArgs(1),
	Run:   runShow,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&bucketFlag, "bucket", "b", "", "Output bucket name (defaults to OUTPUT_BUCKET_NAME)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print raw JSON instead of a summary")
	rootCmd.AddCommand(statusCmd, artifactsCmd, showCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// outputStore builds the S3-backed store for the output bucket.
func outputStore(ctx context.Context) *store.S3Store {
	bucket := bucketFlag
	if bucket == "" {
		bucket = os.Getenv("OUTPUT_BUCKET_NAME")
	}
	if bucket == "" {
		log.Fatal().Msg("Output bucket is required: pass --bucket or set OUTPUT_BUCKET_NAME")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	return store.NewS3Store(s3.NewFromConfig(cfg), bucket)
}

// normalizeDirectory ensures the directory argument carries a trailing slash.
func normalizeDirectory(arg string) string {
	if strings.HasSuffix(arg, "/") {
		return arg
	}
	return arg + "/"
}

func runStatus(cmd *cobra.Command, args []string) {
	logging.Init()
	ctx := context.Background()
	dir := normalizeDirectory(args[0])
	st := outputStore(ctx)

	body, err := st.Get(ctx, pipeline.StatusKey(dir))
	if err != nil {
		log.Fatal().Err(err).Str("directoryPath", dir).Msg("Failed to read status record")
	}

	if jsonFlag {
		fmt.Println(string(body))
		return
	}

	var record pipeline.StatusRecord
	if err := json.Unmarshal(body, &record); err != nil {
		log.Fatal().Err(err).Str("directoryPath", dir).Msg("Status record is not valid JSON")
	}

	fmt.Printf("Directory:  %s\n", record.DirectoryPath)
	fmt.Printf("Status:     %s\n", record.Status)
	fmt.Printf("Message:    %s\n", record.Message)
	fmt.Printf("Files:      %d/%d completed\n", record.CompletedFiles, record.TotalFiles)
	if record.SuccessfulFiles != nil && record.FailedFiles != nil {
		fmt.Printf("Outcomes:   %d succeeded, %d failed\n", *record.SuccessfulFiles, *record.FailedFiles)
	}
	if record.TokenUsage != nil {
		fmt.Printf("Tokens:     %d input, %d output, %d total\n",
			record.TokenUsage.InputTokens, record.TokenUsage.OutputTokens, record.TokenUsage.TotalTokens)
	}
	fmt.Printf("Updated:    %s\n", record.Timestamp)
	if record.ExecutionARN != "" {
		fmt.Printf("Execution:  %s\n", record.ExecutionARN)
	}
	if record.Error != "" {
		fmt.Printf("Error:      %s\n", record.Error)
	}
}

func runArtifacts(cmd *cobra.Command, args []string) {
	logging.Init()
	ctx := context.Background()
	dir := normalizeDirectory(args[0])
	st := outputStore(ctx)

	keys, err := st.List(ctx, dir)
	if err != nil {
		log.Fatal().Err(err).Str("directoryPath", dir).Msg("Failed to list directory")
	}

	var artifactKeys []string
	for _, key := range keys {
		if strings.HasSuffix(key, ".json") &&
			!strings.HasSuffix(key, pipeline.StatusKeySuffix) &&
			!strings.HasSuffix(key, pipeline.ManifestKeySuffix) {
			artifactKeys = append(artifactKeys, key)
		}
	}
	sort.Strings(artifactKeys)

	if len(artifactKeys) == 0 {
		fmt.Printf("No outcome artifacts under %s\n", dir)
		return
	}

	for _, key := range artifactKeys {
		meta, err := st.Head(ctx, key)
		if err != nil {
			fmt.Printf("%-60s  (metadata unavailable: %v)\n", key, err)
			continue
		}
		status := meta[pipeline.MetaProcessingStatus]
		line := fmt.Sprintf("%-60s  %s", key, status)
		if status == pipeline.ProcessingError {
			line += "  " + meta[pipeline.MetaErrorCode]
		} else {
			line += fmt.Sprintf("  tokens=%s", meta[pipeline.MetaTotalTokens])
		}
		fmt.Println(line)
	}
	fmt.Printf("\n%d artifacts\n", len(artifactKeys))
}

func runShow(cmd *cobra.Command, args []string) {
	logging.Init()
	ctx := context.Background()
	st := outputStore(ctx)

	key := args[0]
	if !strings.HasSuffix(key, ".json") {
		key = pipeline.ArtifactKey(key)
	}

	body, err := st.Get(ctx, key)
	if err != nil {
		log.Fatal().Err(err).Str("artifactKey", key).Msg("Failed to read outcome artifact")
	}

	if jsonFlag {
		fmt.Println(string(body))
		return
	}

	var artifact struct {
		Transcription     string   `json:"transcription"`
		DetectedLanguages []string `json:"detected_languages"`
		Status            string   `json:"status"`
		ErrorCode         string   `json:"error_code"`
		ErrorMessage      string   `json:"error_message"`
		FileKey           string   `json:"file_key"`
		Timestamp         string   `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &artifact); err != nil {
		log.Fatal().Err(err).Str("artifactKey", key).Msg("Artifact is not valid JSON")
	}

	if artifact.Status == pipeline.ProcessingError {
		fmt.Printf("File:     %s\n", artifact.FileKey)
		fmt.Printf("Status:   error (%s)\n", artifact.ErrorCode)
		fmt.Printf("Message:  %s\n", artifact.ErrorMessage)
		fmt.Printf("When:     %s\n", artifact.Timestamp)
		return
	}

	fmt.Printf("File:       %s\n", artifact.FileKey)
	fmt.Printf("Languages:  %s\n", strings.Join(artifact.DetectedLanguages, ", "))
	fmt.Printf("When:       %s\n", artifact.Timestamp)
	fmt.Println()
	fmt.Println(artifact.Transcription)
}
