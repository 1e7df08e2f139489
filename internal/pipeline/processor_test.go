package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/fpang/ai-file-processor/internal/store"
)

// fakeModel returns a canned transcription or error.
type fakeModel struct {
	result *Transcription
	err    error
	calls  int
}

func (f *fakeModel) Transcribe(ctx context.Context, req TranscribeRequest) (*Transcription, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestProcessor(files, output *store.MemStore, model Transcriber) *Processor {
	return &Processor{
		Files:  files,
		Output: output,
		Model:  model,
		Now:    fixedClock,
	}
}

func testItem() WorkItem {
	return WorkItem{
		Record: WorkRecord{
			RecordID:    DeriveRecordID("invoices/a.pdf"),
			FileKey:     "invoices/a.pdf",
			Bucket:      "in",
			Prompt:      "transcribe all text",
			FileFormat:  "pdf",
			ContentType: "application/pdf",
		},
	}
}

func TestProcessSuccess(t *testing.T) {
	files := store.NewMemStore()
	output := store.NewMemStore()
	files.Put(context.Background(), "invoices/a.pdf", []byte("pdf-bytes"), "", nil)

	model := &fakeModel{result: &Transcription{
		Text:      "Invoice #42\nTotal: 19.99",
		Languages: []string{"English"},
		Usage:     TokenUsage{InputTokens: 120, OutputTokens: 40, TotalTokens: 160},
	}}

	p := newTestProcessor(files, output, model)
	outcome := p.Process(context.Background(), testItem())

	if outcome.Status != ProcessingSuccess {
		t.Fatalf("outcome status = %q, want success (%s)", outcome.Status, outcome.ErrorMessage)
	}
	if outcome.ArtifactKey != "invoices/a.pdf.json" {
		t.Errorf("artifact key = %q", outcome.ArtifactKey)
	}
	if outcome.Usage.TotalTokens != 160 {
		t.Errorf("outcome total tokens = %d, want 160", outcome.Usage.TotalTokens)
	}

	obj, ok := output.Object("invoices/a.pdf.json")
	if !ok {
		t.Fatal("outcome artifact not written")
	}
	if obj.Metadata[MetaProcessingStatus] != ProcessingSuccess {
		t.Errorf("artifact status metadata = %q", obj.Metadata[MetaProcessingStatus])
	}
	if obj.Metadata[MetaInputTokens] != "120" || obj.Metadata[MetaOutputTokens] != "40" || obj.Metadata[MetaTotalTokens] != "160" {
		t.Errorf("unexpected token metadata: %v", obj.Metadata)
	}
	if obj.Metadata[MetaRecordID] != testItem().Record.RecordID {
		t.Errorf("artifact record ID metadata = %q", obj.Metadata[MetaRecordID])
	}

	var artifact struct {
		Transcription     string   `json:"transcription"`
		DetectedLanguages []string `json:"detected_languages"`
		FileKey           string   `json:"file_key"`
	}
	if err := json.Unmarshal(obj.Body, &artifact); err != nil {
		t.Fatalf("unmarshal artifact body: %v", err)
	}
	if artifact.Transcription != "Invoice #42\nTotal: 19.99" {
		t.Errorf("artifact transcription = %q", artifact.Transcription)
	}
	if len(artifact.DetectedLanguages) != 1 || artifact.DetectedLanguages[0] != "English" {
		t.Errorf("artifact languages = %v", artifact.DetectedLanguages)
	}
	if artifact.FileKey != "invoices/a.pdf" {
		t.Errorf("artifact file key = %q", artifact.FileKey)
	}

	if output.Len() != 1 {
		t.Errorf("output store has %d objects, want exactly 1", output.Len())
	}
}

func TestProcessComputesTotalTokensWhenMissing(t *testing.T) {
	files := store.NewMemStore()
	output := store.NewMemStore()
	files.Put(context.Background(), "invoices/a.pdf", []byte("pdf-bytes"), "", nil)

	model := &fakeModel{result: &Transcription{
		Text:      "text",
		Languages: []string{"French"},
		Usage:     TokenUsage{InputTokens: 10, OutputTokens: 5},
	}}

	p := newTestProcessor(files, output, model)
	outcome := p.Process(context.Background(), testItem())

	if outcome.Usage.TotalTokens != 15 {
		t.Errorf("total tokens = %d, want 15", outcome.Usage.TotalTokens)
	}
}

func TestProcessMissingFile(t *testing.T) {
	files := store.NewMemStore()
	output := store.NewMemStore()
	model := &fakeModel{}

	p := newTestProcessor(files, output, model)
	outcome := p.Process(context.Background(), testItem())

	if outcome.Status != ProcessingError {
		t.Fatalf("outcome status = %q, want error", outcome.Status)
	}
	if outcome.ErrorCode != "store_access_error" {
		t.Errorf("error code = %q, want store_access_error", outcome.ErrorCode)
	}
	if model.calls != 0 {
		t.Error("model called despite unreadable file")
	}

	obj, ok := output.Object("invoices/a.pdf.json")
	if !ok {
		t.Fatal("error outcome artifact not written")
	}
	if obj.Metadata[MetaProcessingStatus] != ProcessingError {
		t.Errorf("artifact status metadata = %q", obj.Metadata[MetaProcessingStatus])
	}
	if obj.Metadata[MetaErrorCode] != "store_access_error" {
		t.Errorf("artifact error code metadata = %q", obj.Metadata[MetaErrorCode])
	}
	if obj.Metadata[MetaInputTokens] != "0" || obj.Metadata[MetaTotalTokens] != "0" {
		t.Errorf("error artifact token metadata not zeroed: %v", obj.Metadata)
	}
}

func TestProcessModelFailure(t *testing.T) {
	files := store.NewMemStore()
	output := store.NewMemStore()
	files.Put(context.Background(), "invoices/a.pdf", []byte("pdf-bytes"), "", nil)

	model := &fakeModel{err: NewCapabilityError("failed to generate content", errors.New("429"))}

	p := newTestProcessor(files, output, model)
	outcome := p.Process(context.Background(), testItem())

	if outcome.Status != ProcessingError || outcome.ErrorCode != "capability_error" {
		t.Errorf("outcome = %q/%q, want error/capability_error", outcome.Status, outcome.ErrorCode)
	}
}

func TestProcessUnclassifiedModelFailure(t *testing.T) {
	files := store.NewMemStore()
	output := store.NewMemStore()
	files.Put(context.Background(), "invoices/a.pdf", []byte("pdf-bytes"), "", nil)

	model := &fakeModel{err: errors.New("connection reset")}

	p := newTestProcessor(files, output, model)
	outcome := p.Process(context.Background(), testItem())

	if outcome.ErrorCode != "capability_error" {
		t.Errorf("error code = %q, want capability_error", outcome.ErrorCode)
	}
}

func TestProcessEmptyTranscription(t *testing.T) {
	files := store.NewMemStore()
	output := store.NewMemStore()
	files.Put(context.Background(), "invoices/a.pdf", []byte("pdf-bytes"), "", nil)

	model := &fakeModel{result: &Transcription{Text: "   ", Languages: []string{"English"}}}

	p := newTestProcessor(files, output, model)
	outcome := p.Process(context.Background(), testItem())

	if outcome.ErrorCode != "response_schema_error" {
		t.Errorf("error code = %q, want response_schema_error", outcome.ErrorCode)
	}
}

func TestProcessNoDetectedLanguages(t *testing.T) {
	files := store.NewMemStore()
	output := store.NewMemStore()
	files.Put(context.Background(), "invoices/a.pdf", []byte("pdf-bytes"), "", nil)

	model := &fakeModel{result: &Transcription{Text: "some text"}}

	p := newTestProcessor(files, output, model)
	outcome := p.Process(context.Background(), testItem())

	if outcome.ErrorCode != "response_schema_error" {
		t.Errorf("error code = %q, want response_schema_error", outcome.ErrorCode)
	}
	obj, ok := output.Object("invoices/a.pdf.json")
	if !ok {
		t.Fatal("error outcome artifact not written")
	}
	if obj.Metadata[MetaErrorCode] != "response_schema_error" {
		t.Errorf("artifact error code = %q", obj.Metadata[MetaErrorCode])
	}
}

func TestProcessMissingFileKey(t *testing.T) {
	files := store.NewMemStore()
	output := store.NewMemStore()
	model := &fakeModel{}

	p := newTestProcessor(files, output, model)
	outcome := p.Process(context.Background(), WorkItem{Record: WorkRecord{RecordID: "orphan"}})

	if outcome.Status != ProcessingError || outcome.ErrorCode != "validation_error" {
		t.Errorf("outcome = %q/%q, want error/validation_error", outcome.Status, outcome.ErrorCode)
	}
	if outcome.ArtifactKey != "" {
		t.Errorf("artifact key = %q, want empty", outcome.ArtifactKey)
	}
	if output.Len() != 0 {
		t.Errorf("output store has %d objects, want 0", output.Len())
	}
}
