// Package apply implements C5, the Applier: the single writer that
// consumes the Pending-Update Set exactly once after the scheduler's
// drain barrier and rewrites the graph (spec §4.5 companion — node
// markers, extraction metadata, and topic-index pages).
package apply

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kgraph/enrich/internal/extract"
	"github.com/kgraph/enrich/internal/graphmodel"
	"github.com/kgraph/enrich/internal/metadata"
	"github.com/kgraph/enrich/internal/topic"
	"github.com/kgraph/enrich/internal/urlclassify"
)

type Config struct {
	GraphRoot        string
	PropertyPrefix   string
	MinPreviewLength int
	MaxTopicsPerItem int
	DryRun           bool
}

type Applier struct {
	graph    graphmodel.Graph
	cfg      Config
	recorder metadata.Recorder
}

func New(graph graphmodel.Graph, cfg Config, recorder metadata.Recorder) *Applier {
	return &Applier{graph: graph, cfg: cfg, recorder: recorder}
}

// Result summarizes one apply pass for the end-of-run report. Per-file
// write failures are tolerated independently: a document failing to
// write never blocks another document's write, and its failure is
// counted, not raised.
type Result struct {
	NodesUpdated        int
	DocumentsWritten     int
	DocumentsFailed      int
	TopicIndexesWritten  int
	TopicIndexesFailed   int
	PreviewsExtracted    int
	PropertiesStamped    int
}

type nodeLocation struct {
	docIdx int
	node   *graphmodel.Node
}

// Apply consumes updates (the scheduler's Pending-Update Set, already
// drained) exactly once: it rewrites matching node bodies with a
// platform marker plus indented extraction metadata, stamps topic
// properties via internal/topic, and emits one index document per topic
// referencing every node tagged with it.
func (a *Applier) Apply(updates map[string][]extract.Record) (Result, error) {
	var res Result

	docs, err := a.graph.Documents()
	if err != nil {
		return res, fmt.Errorf("apply: list documents: %w", err)
	}

	nodeIndex := make(map[string]nodeLocation, len(docs))
	for i := range docs {
		for j := range docs[i].Nodes {
			nodeIndex[docs[i].Nodes[j].ID] = nodeLocation{docIdx: i, node: &docs[i].Nodes[j]}
		}
	}

	changedDocs := map[int]bool{}
	topicRefs := map[string][]topicRef{}

	nodeIDs := make([]string, 0, len(updates))
	for id := range updates {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	for _, nodeID := range nodeIDs {
		loc, ok := nodeIndex[nodeID]
		if !ok {
			a.recorder.RecordError(time.Now(), "apply", "Applier.Apply", metadata.CauseInvariantViolation,
				fmt.Sprintf("pending update for unknown node %s", nodeID), nil)
			continue
		}

		for _, rec := range updates[nodeID] {
			previewExtracted, propsStamped := a.applyRecord(loc.node, rec, docs[loc.docIdx].Path, topicRefs)
			res.NodesUpdated++
			if previewExtracted {
				res.PreviewsExtracted++
			}
			res.PropertiesStamped += propsStamped
		}
		changedDocs[loc.docIdx] = true
	}

	if a.cfg.DryRun {
		return res, nil
	}

	for idx := range changedDocs {
		if err := a.graph.Write(docs[idx]); err != nil {
			res.DocumentsFailed++
			a.recorder.RecordError(time.Now(), "apply", "Applier.Apply", metadata.CauseStorageFailure,
				fmt.Sprintf("write %s: %v", docs[idx].Path, err), nil)
			continue
		}
		res.DocumentsWritten++
		a.recorder.RecordArtifact(docs[idx].Path)
	}

	for tag, refs := range topicRefs {
		indexDoc := buildTopicIndexDocument(a.cfg.GraphRoot, a.cfg.PropertyPrefix, tag, refs)
		if err := a.graph.Write(indexDoc); err != nil {
			res.TopicIndexesFailed++
			a.recorder.RecordError(time.Now(), "apply", "Applier.Apply", metadata.CauseStorageFailure,
				fmt.Sprintf("write topic index %s: %v", indexDoc.Path, err), nil)
			continue
		}
		res.TopicIndexesWritten++
		a.recorder.RecordArtifact(indexDoc.Path)
	}

	return res, nil
}

type topicRef struct {
	docPath string
	nodeID  string
	title   string
}

// applyRecord rewrites node's body with the kind's marker plus an indented
// detail block, and stamps topic properties when the extracted text clears
// MinPreviewLength. It reports whether a preview/caption was extracted and
// how many topic properties it stamped, for the end-of-run report (spec
// §7).
func (a *Applier) applyRecord(node *graphmodel.Node, rec extract.Record, docPath string, topicRefs map[string][]topicRef) (previewExtracted bool, propsStamped int) {
	block := marker(rec)
	if details := metadataDetails(rec); details != "" {
		block += "\n" + details
	}
	node.Body = strings.TrimRight(node.Body, "\n") + "\n" + block

	if node.Properties == nil {
		node.Properties = map[string]string{}
	}

	title := ""
	if rec.Title != nil {
		title = *rec.Title
	}
	text := title
	if rec.PreviewText != nil {
		text = *rec.PreviewText
		previewExtracted = true
	}
	if len(text) < a.cfg.MinPreviewLength {
		return previewExtracted, 0
	}

	tags := topic.Analyze(title, text, platformHint(rec.Kind), a.cfg.MaxTopicsPerItem)
	for i, tag := range tags {
		if i >= a.cfg.MaxTopicsPerItem {
			break
		}
		key := fmt.Sprintf("%s-%d", a.cfg.PropertyPrefix, i+1)
		node.Properties[key] = tag
		propsStamped++
		topicRefs[tag] = append(topicRefs[tag], topicRef{docPath: docPath, nodeID: node.ID, title: title})
	}
	return previewExtracted, propsStamped
}

func marker(rec extract.Record) string {
	switch rec.Kind {
	case urlclassify.KindVideo:
		return fmt.Sprintf("{{video %s}}", rec.URL)
	case urlclassify.KindSocial:
		return fmt.Sprintf("{{tweet %s}}", rec.URL)
	case urlclassify.KindPDF:
		return fmt.Sprintf("{{pdf %s}}", rec.URL)
	default:
		return fmt.Sprintf("{{link %s}}", rec.URL)
	}
}

// metadataDetails renders the per-kind detail lines that follow a marker,
// one level indented under the bullet — grounded on
// original_source/logseq_py/pipeline/comprehensive_processor.py's
// _enhance_block_content branches (video/twitter/pdf), which this mirrors
// line for line: "**title**", then a kind-specific byline, then a
// kind-specific trailer. Unknown fields (nil pointers) are simply omitted.
func metadataDetails(rec extract.Record) string {
	var lines []string
	add := func(s string) { lines = append(lines, "  "+s) }

	if rec.Title != nil && *rec.Title != "" {
		add(fmt.Sprintf("**%s**", *rec.Title))
	}

	switch rec.Kind {
	case urlclassify.KindVideo:
		if rec.Author != nil && *rec.Author != "" {
			add(fmt.Sprintf("By: %s", *rec.Author))
		}
		if rec.Duration != nil {
			add(fmt.Sprintf("Duration: %s", rec.Duration.String()))
		}
	case urlclassify.KindSocial:
		if rec.Author != nil && *rec.Author != "" {
			add(fmt.Sprintf("By: %s", *rec.Author))
		}
		if rec.PreviewText != nil && *rec.PreviewText != "" {
			add(truncatePreview(*rec.PreviewText, 200))
		}
	case urlclassify.KindPDF:
		if rec.Author != nil && *rec.Author != "" {
			add(fmt.Sprintf("Author: %s", *rec.Author))
		}
		if rec.PageCount != nil {
			add(fmt.Sprintf("Pages: %d", *rec.PageCount))
		}
		if rec.SizeBytes != nil {
			add(fmt.Sprintf("Size: %.1f MB", float64(*rec.SizeBytes)/(1024*1024)))
		}
	}

	return strings.Join(lines, "\n")
}

// truncatePreview mirrors the original processor's content[:200] + "..."
// truncation for a scraped social post body.
func truncatePreview(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

func platformHint(kind urlclassify.Kind) topic.PlatformHint {
	switch kind {
	case urlclassify.KindSocial:
		return topic.PlatformSocial
	case urlclassify.KindPDF:
		return topic.PlatformPDF
	default:
		return topic.PlatformNone
	}
}

// buildTopicIndexDocument builds the topic-index page for tag, named
// <prefix>-<tag>.md at the graph root (spec §4.5/§6, matching
// comprehensive_processor.py's `page_path = self.graph_path / f"{page_name}.md"`
// where page_name is f"{property_prefix}-{topic}").
func buildTopicIndexDocument(graphRoot, prefix, tag string, refs []topicRef) graphmodel.Document {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].docPath != refs[j].docPath {
			return refs[i].docPath < refs[j].docPath
		}
		return refs[i].nodeID < refs[j].nodeID
	})

	nodes := make([]graphmodel.Node, 0, len(refs))
	for _, r := range refs {
		label := r.title
		if label == "" {
			label = r.docPath
		}
		nodes = append(nodes, graphmodel.Node{
			ID:   tag + "-" + r.nodeID,
			Body: fmt.Sprintf("[[%s]] — %s", r.docPath, label),
		})
	}

	return graphmodel.Document{
		ID:         "topic-index-" + tag,
		Path:       filepath.Join(graphRoot, prefix+"-"+tag+".md"),
		Properties: map[string]string{"type": "topic-index", "tag": tag},
		Nodes:      nodes,
	}
}
