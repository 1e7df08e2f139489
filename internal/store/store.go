// Package store provides object-store access for the transcription pipeline.
//
// Status records, work manifests, and outcome artifacts are all plain objects
// in a bucket. The interface is deliberately small: single-object reads and
// writes, prefix listing, and metadata-only reads. There is no compare-and-swap;
// concurrent writers to the same key race with last-writer-wins semantics.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get and Head when the key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore is the capability the pipeline components are injected with.
// The production implementation is S3Store; tests use MemStore.
type ObjectStore interface {
	// Get returns the full object body.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes an object with the given body, content type, and
	// string-valued metadata. Metadata may be nil.
	Put(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error

	// List returns all keys under the given prefix, in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Head returns the object's metadata without reading the body.
	Head(ctx context.Context, key string) (map[string]string, error)
}
