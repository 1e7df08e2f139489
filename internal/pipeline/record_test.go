package pipeline

import (
	"errors"
	"strings"
	"testing"
)

func TestDeriveRecordIDDeterministic(t *testing.T) {
	a := DeriveRecordID("invoices/receipt-01.pdf")
	b := DeriveRecordID("invoices/receipt-01.pdf")
	if a != b {
		t.Errorf("expected identical IDs for identical keys, got %q and %q", a, b)
	}
}

func TestDeriveRecordIDSubstitutesSeparators(t *testing.T) {
	id := DeriveRecordID("invoices/receipt-01.pdf")
	if !strings.HasPrefix(id, "invoices-receipt-01-pdf-") {
		t.Errorf("expected separator-substituted prefix, got %q", id)
	}
	if strings.ContainsAny(id, "/.") {
		t.Errorf("record ID must not contain path or extension separators: %q", id)
	}
}

func TestDeriveRecordIDDistinctKeys(t *testing.T) {
	// Separator substitution alone would map both keys to "a-b-png".
	a := DeriveRecordID("a/b.png")
	b := DeriveRecordID("a-b.png")
	if a == b {
		t.Errorf("distinct keys produced colliding record ID %q", a)
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		key  string
		want string
		ok   bool
	}{
		{"docs/scan.pdf", "application/pdf", true},
		{"docs/photo.jpg", "image/jpeg", true},
		{"docs/photo.JPEG", "image/jpeg", true},
		{"docs/chart.PNG", "image/png", true},
		{"docs/anim.gif", "image/gif", true},
		{"docs/page.tif", "image/tiff", true},
		{"docs/notes.txt", "", false},
		{"docs/archive.zip", "", false},
		{"docs/noext", "", false},
	}
	for _, tt := range tests {
		got, ok := ContentTypeFor(tt.key)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ContentTypeFor(%q) = %q, %v; want %q, %v", tt.key, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFileFormat(t *testing.T) {
	if got := FileFormat("docs/scan.PDF"); got != "pdf" {
		t.Errorf("FileFormat = %q, want %q", got, "pdf")
	}
	if got := FileFormat("docs/noext"); got != "" {
		t.Errorf("FileFormat for extensionless key = %q, want empty", got)
	}
}

func TestIsBookkeepingKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"invoices/prompt.json", true},
		{"invoices/_status.json", true},
		{"invoices_status.json", true},
		{"invoices_manifest.json", true},
		{"invoices/receipt.pdf", false},
		{"invoices/receipt.pdf.json", false},
	}
	for _, tt := range tests {
		if got := IsBookkeepingKey(tt.key); got != tt.want {
			t.Errorf("IsBookkeepingKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestUploadEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   UploadEvent
		wantErr bool
	}{
		{"valid", UploadEvent{Bucket: "in", Key: "invoices/prompt.json"}, false},
		{"missing bucket", UploadEvent{Key: "invoices/prompt.json"}, true},
		{"missing key", UploadEvent{Bucket: "in"}, true},
		{"not a config", UploadEvent{Bucket: "in", Key: "invoices/receipt.pdf"}, true},
		{"root config", UploadEvent{Bucket: "in", Key: "prompt.json"}, true},
		{"nested config", UploadEvent{Bucket: "in", Key: "a/b/prompt.json"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUploadEventDirectoryPath(t *testing.T) {
	e := UploadEvent{Bucket: "in", Key: "invoices/prompt.json"}
	if got := e.DirectoryPath(); got != "invoices/" {
		t.Errorf("DirectoryPath() = %q, want %q", got, "invoices/")
	}
}

func TestCompletionSignalValidate(t *testing.T) {
	valid := CompletionSignal{DirectoryPath: "invoices/", Status: StatusCompleted}
	if err := valid.Validate(); err != nil {
		t.Errorf("unexpected error for valid signal: %v", err)
	}

	nonTerminal := CompletionSignal{DirectoryPath: "invoices/", Status: StatusInProgress}
	if err := nonTerminal.Validate(); err == nil {
		t.Error("expected error for non-terminal status")
	}

	missingDir := CompletionSignal{Status: StatusError}
	if err := missingDir.Validate(); err == nil {
		t.Error("expected error for missing directory_path")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(NewValidationError("bad")); got != "validation_error" {
		t.Errorf("CodeOf validation error = %q", got)
	}
	if got := CodeOf(NewStoreAccessError("s3 down", nil)); got != "store_access_error" {
		t.Errorf("CodeOf store error = %q", got)
	}
	// Unclassified errors default to capability_error at the processor boundary.
	if got := CodeOf(errors.New("boom")); got != "capability_error" {
		t.Errorf("CodeOf unclassified error = %q", got)
	}
}
