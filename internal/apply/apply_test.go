package apply

import (
	"testing"
	"time"

	"github.com/kgraph/enrich/internal/extract"
	"github.com/kgraph/enrich/internal/graphmodel"
	"github.com/kgraph/enrich/internal/metadata"
	"github.com/kgraph/enrich/internal/urlclassify"
)

type fakeGraph struct {
	docs    []graphmodel.Document
	written map[string]graphmodel.Document
	failOn  string
}

func (f *fakeGraph) Documents() ([]graphmodel.Document, error) { return f.docs, nil }

func (f *fakeGraph) Write(doc graphmodel.Document) error {
	if f.failOn != "" && doc.Path == f.failOn {
		return errWriteFailed
	}
	if f.written == nil {
		f.written = map[string]graphmodel.Document{}
	}
	f.written[doc.Path] = doc
	return nil
}

func (f *fakeGraph) IsJournal(string) bool { return false }

type writeFailed struct{}

func (writeFailed) Error() string { return "write failed" }

var errWriteFailed = writeFailed{}

type noopRecorder struct{}

func (noopRecorder) RecordError(time.Time, string, string, metadata.ErrorCause, string, []metadata.Attribute) {
}
func (noopRecorder) RecordFetch(metadata.FetchEvent) {}
func (noopRecorder) RecordArtifact(string)           {}
func (noopRecorder) Errors() []metadata.ErrorRecord  { return nil }

func cfg() Config {
	return Config{GraphRoot: "/graphs/test-kg", PropertyPrefix: "topic", MinPreviewLength: 10, MaxTopicsPerItem: 3}
}

func TestApplyStampsMarkerAndMetadata(t *testing.T) {
	g := &fakeGraph{docs: []graphmodel.Document{
		{ID: "doc-1", Path: "journals/2026_07_31.md", Nodes: []graphmodel.Node{
			{ID: "n1", DocumentID: "doc-1", Body: "watch https://youtube.com/watch?v=abc"},
		}},
	}}

	title := "A Great Machine Learning Talk"
	rec := extract.Record{
		Kind:        urlclassify.KindVideo,
		URL:         "https://youtube.com/watch?v=abc",
		Title:       &title,
		ExtractedAt: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
	}

	a := New(g, cfg(), noopRecorder{})
	res, err := a.Apply(map[string][]extract.Record{"n1": {rec}})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.NodesUpdated != 1 || res.DocumentsWritten != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	written := g.written["journals/2026_07_31.md"]
	node := written.Nodes[0]
	if !contains(node.Body, "{{video https://youtube.com/watch?v=abc}}") {
		t.Fatalf("expected video marker in body, got %q", node.Body)
	}
	if !contains(node.Body, "**"+title+"**") {
		t.Fatalf("expected title detail line, got %q", node.Body)
	}
	if len(node.Properties) == 0 {
		t.Fatalf("expected topic properties to be stamped")
	}
}

func TestApplySkipsTopicStampingBelowMinPreviewLength(t *testing.T) {
	g := &fakeGraph{docs: []graphmodel.Document{
		{ID: "doc-1", Path: "p.md", Nodes: []graphmodel.Node{{ID: "n1", DocumentID: "doc-1"}}},
	}}
	title := "hi"
	rec := extract.Record{Kind: urlclassify.KindPDF, URL: "https://e.com/a.pdf", Title: &title}

	c := cfg()
	c.MinPreviewLength = 50
	a := New(g, c, noopRecorder{})
	a.Apply(map[string][]extract.Record{"n1": {rec}})

	written := g.written["p.md"]
	if len(written.Nodes[0].Properties) != 0 {
		t.Fatalf("expected no topic properties stamped below min preview length")
	}
}

func TestApplyToleratesIndependentDocumentWriteFailure(t *testing.T) {
	g := &fakeGraph{
		failOn: "bad.md",
		docs: []graphmodel.Document{
			{ID: "d1", Path: "bad.md", Nodes: []graphmodel.Node{{ID: "n1", DocumentID: "d1"}}},
			{ID: "d2", Path: "good.md", Nodes: []graphmodel.Node{{ID: "n2", DocumentID: "d2"}}},
		},
	}
	title := "Something Long Enough To Count As A Preview"
	a := New(g, cfg(), noopRecorder{})
	res, err := a.Apply(map[string][]extract.Record{
		"n1": {{Kind: urlclassify.KindPDF, URL: "https://e.com/a.pdf", Title: &title}},
		"n2": {{Kind: urlclassify.KindPDF, URL: "https://e.com/b.pdf", Title: &title}},
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.DocumentsFailed != 1 || res.DocumentsWritten != 1 {
		t.Fatalf("expected one failure and one success, got %+v", res)
	}
	if _, ok := g.written["good.md"]; !ok {
		t.Fatalf("expected good.md to be written despite bad.md failing")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
