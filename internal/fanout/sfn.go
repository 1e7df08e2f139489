// Package fanout starts Step Functions executions that run one worker
// invocation per work record.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-file-processor/internal/pipeline"
)

// SFNTrigger implements pipeline.Trigger over a Step Functions state machine
// whose Map state iterates the input's records.
type SFNTrigger struct {
	Client          *sfn.Client
	StateMachineARN string
}

// NewSFNTrigger creates a trigger for the given state machine.
func NewSFNTrigger(client *sfn.Client, stateMachineARN string) *SFNTrigger {
	return &SFNTrigger{Client: client, StateMachineARN: stateMachineARN}
}

// StartFanOut starts one execution for the batch and returns its ARN. The
// execution name embeds the directory path plus a random suffix so concurrent
// re-plans of the same directory never collide.
func (t *SFNTrigger) StartFanOut(ctx context.Context, input pipeline.FanOutInput) (string, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to encode fan-out input: %w", err)
	}

	name := executionName(input.DirectoryPath)
	out, err := t.Client.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(t.StateMachineARN),
		Input:           aws.String(string(body)),
		Name:            aws.String(name),
	})
	if err != nil {
		log.Error().Err(err).Str("directoryPath", input.DirectoryPath).Msg("Failed to start processing pipeline")
		return "", fmt.Errorf("failed to start execution: %w", err)
	}

	log.Info().
		Str("directoryPath", input.DirectoryPath).
		Int("records", len(input.Records)).
		Str("executionArn", aws.ToString(out.ExecutionArn)).
		Msg("Batch dispatched to processing pipeline")

	return aws.ToString(out.ExecutionArn), nil
}

// executionName builds a Step Functions execution name from a directory path.
// Names allow at most 80 characters and a restricted character set.
func executionName(directoryPath string) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, strings.TrimSuffix(directoryPath, "/"))
	suffix := uuid.NewString()[:8]
	const maxBaseLen = 80 - 9
	if len(base) > maxBaseLen {
		base = base[:maxBaseLen]
	}
	return base + "-" + suffix
}
