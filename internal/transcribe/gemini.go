// Package transcribe runs single-file transcription calls against the Gemini
// API and parses the structured JSON responses.
package transcribe

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/ai-file-processor/internal/jsonutil"
	"github.com/fpang/ai-file-processor/internal/metrics"
	"github.com/fpang/ai-file-processor/internal/pipeline"
)

// DefaultModelName is used when the GEMINI_MODEL parameter is unset.
const DefaultModelName = "gemini-3-flash-preview"

const systemPrompt = `You are a precise document and image transcription engine.
Transcribe all visible text from the supplied file exactly as written, preserving
reading order. Respond with a single JSON object:
{"transcription": "<full text>", "detected_languages": ["<ISO language name>", ...]}
Return JSON only, no commentary.`

// transcriptionResponse is the JSON shape the model is instructed to return.
type transcriptionResponse struct {
	Transcription     string   `json:"transcription"`
	DetectedLanguages []string `json:"detected_languages"`
}

// GeminiModel implements pipeline.Transcriber over a genai client.
type GeminiModel struct {
	Client    *genai.Client
	ModelName string

	// Namespace for the EMF metrics emitted per API call.
	MetricsNamespace string
}

// NewClient creates a Gemini API client from an API key.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// Transcribe sends one file to Gemini and parses the structured response.
// Call failures are classified as capability errors, unparseable or
// incomplete responses as response schema errors.
func (g *GeminiModel) Transcribe(ctx context.Context, req pipeline.TranscribeRequest) (*pipeline.Transcription, error) {
	modelName := g.ModelName
	if modelName == "" {
		modelName = DefaultModelName
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		config.Temperature = &temp
	}

	parts := []*genai.Part{
		{
			InlineData: &genai.Blob{
				MIMEType: req.MIMEType,
				Data:     req.Data,
			},
		},
		{Text: req.Prompt},
	}

	log.Debug().
		Str("model", modelName).
		Str("mimeType", req.MIMEType).
		Int("fileBytes", len(req.Data)).
		Msg("Starting Gemini API call for transcription")

	contents := []*genai.Content{{Role: "user", Parts: parts}}
	geminiStart := time.Now()
	resp, err := g.Client.Models.GenerateContent(ctx, modelName, contents, config)
	geminiElapsed := time.Since(geminiStart)

	// Emit Gemini API metrics
	namespace := g.MetricsNamespace
	if namespace == "" {
		namespace = "AiFileProcessor"
	}
	m := metrics.New(namespace).
		Dimension("Operation", "transcription").
		Metric("GeminiApiLatencyMs", float64(geminiElapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("GeminiApiCalls")
	if err != nil {
		m.Count("GeminiApiErrors")
	}
	if resp != nil && resp.UsageMetadata != nil {
		m.Metric("GeminiInputTokens", float64(resp.UsageMetadata.PromptTokenCount), metrics.UnitCount)
		m.Metric("GeminiOutputTokens", float64(resp.UsageMetadata.CandidatesTokenCount), metrics.UnitCount)
	}
	m.Flush()

	if err != nil {
		log.Error().Err(err).Dur("duration", geminiElapsed).Msg("Gemini API call failed")
		return nil, pipeline.NewCapabilityError("failed to generate content", err)
	}
	if resp == nil {
		return nil, pipeline.NewCapabilityError("received empty response from Gemini API", nil)
	}

	responseText := resp.Text()
	log.Debug().
		Int("responseLength", len(responseText)).
		Dur("duration", geminiElapsed).
		Msg("Gemini API response received")

	parsed, err := jsonutil.ParseJSON[transcriptionResponse](responseText)
	if err != nil {
		return nil, pipeline.NewResponseSchemaError("failed to parse transcription response", err)
	}

	result := &pipeline.Transcription{
		Text:      parsed.Transcription,
		Languages: parsed.DetectedLanguages,
	}
	if resp.UsageMetadata != nil {
		result.Usage = pipeline.TokenUsage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return result, nil
}
