// Package extract holds the three per-kind extractors (C2) and the
// Extraction Record they all produce.
package extract

import (
	"context"
	"time"

	"github.com/kgraph/enrich/internal/urlclassify"
	"github.com/kgraph/enrich/pkg/failure"
)

// Record is the normalized output of an extractor (spec §3). All fields
// except Kind, URL and ExtractedAt are optional; a zero value means
// "unknown", never "empty" — callers must not conflate the two, which is
// why the numeric/duration fields are pointers.
type Record struct {
	Kind         urlclassify.Kind
	URL          string
	Title        *string
	Author       *string
	CreatedAt    *time.Time
	Duration     *time.Duration
	PageCount    *int
	SizeBytes    *int64
	PreviewText *string
	PlatformTag *string
	ExtractedAt time.Time
}

func strp(s string) *string { return &s }

// now is overridable in tests that need deterministic ExtractedAt values.
var now = time.Now

// Extractor is the common contract all three kinds implement.
type Extractor interface {
	// Extract fetches metadata for url and returns a Record, or a typed
	// failure.ClassifiedError (RateLimitedError / TransientError /
	// PermanentError from pkg/failure). No other error shape may leave an
	// Extractor.
	Extract(ctx context.Context, url string) (Record, failure.ClassifiedError)
}
