// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract obtains bibliographic metadata for a paper from a remote
// LLM-backed agent. The agent returns free-form text expected to hold one
// JSON object; ParseMetadata recovers it.
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/paperflow/internal/httputil"
	"github.com/pdiddy/paperflow/pkg/types"
)

// ErrExtraction marks a metadata extraction that failed after all retries.
var ErrExtraction = errors.New("metadata extraction failed")

// MetadataExtractor abstracts the agent so tests can supply a deterministic
// fake. One call is one attempt; retries are applied by Extract.
type MetadataExtractor interface {
	ExtractMetadata(ctx context.Context, markdown string) (types.PaperMetadata, error)
}

// DefaultPolicy is two retries spaced ten seconds apart.
var DefaultPolicy = httputil.Policy{MaxRetries: 2, Delay: 10 * time.Second}

// Extract calls ex until it succeeds or policy is exhausted. It returns the
// metadata and the number of attempts made. Any network error, failure flag
// or undecodable output counts as a failed attempt.
func Extract(ctx context.Context, ex MetadataExtractor, markdown string, policy httputil.Policy) (types.PaperMetadata, int, error) {
	var meta types.PaperMetadata
	attempts, err := httputil.Retry(ctx, policy, func(ctx context.Context, _ int) error {
		m, err := ex.ExtractMetadata(ctx, markdown)
		if err != nil {
			return err
		}
		meta = m
		return nil
	})
	if err != nil {
		return types.PaperMetadata{}, attempts, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return meta, attempts, nil
}
