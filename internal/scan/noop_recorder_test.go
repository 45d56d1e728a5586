package scan

import (
	"time"

	"github.com/kgraph/enrich/internal/metadata"
)

type noopRecorder struct{}

func (noopRecorder) RecordError(time.Time, string, string, metadata.ErrorCause, string, []metadata.Attribute) {
}
func (noopRecorder) RecordFetch(metadata.FetchEvent) {}
func (noopRecorder) RecordArtifact(string)           {}
func (noopRecorder) Errors() []metadata.ErrorRecord  { return nil }
