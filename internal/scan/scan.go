// Package scan implements C1, the Graph Scanner: the single read-only
// pass over the graph that discovers candidate URLs and submits jobs to
// the scheduler (spec §4.1's companion component — the table itself
// lives in internal/urlclassify).
package scan

import (
	"fmt"
	"net/url"

	"github.com/kgraph/enrich/internal/frontier"
	"github.com/kgraph/enrich/internal/graphmodel"
	"github.com/kgraph/enrich/internal/job"
	"github.com/kgraph/enrich/internal/metadata"
	"github.com/kgraph/enrich/internal/urlclassify"
	"github.com/kgraph/enrich/pkg/urlutil"
)

// Admitter is the subset of *scheduler.Scheduler the scanner needs — kept
// narrow so tests can submit against a fake without wiring a whole
// Scheduler.
type Admitter interface {
	Submit(j job.URLJob) bool
}

type Scanner struct {
	graph graphmodel.Graph

	propertyPrefix string
	processVideo   bool
	processSocial  bool
	processPDF     bool

	recorder metadata.Recorder
}

func New(graph graphmodel.Graph, propertyPrefix string, processVideo, processSocial, processPDF bool, recorder metadata.Recorder) *Scanner {
	return &Scanner{
		graph:          graph,
		propertyPrefix: propertyPrefix,
		processVideo:   processVideo,
		processSocial:  processSocial,
		processPDF:     processPDF,
		recorder:       recorder,
	}
}

// Result summarizes one scan pass for the end-of-run report.
type Result struct {
	DocumentsScanned int
	NodesScanned     int
	NodesSkipped     int // already enriched
	URLsFound        int
	JobsSubmitted    int
	JobsDeduped      int
}

// Scan walks every document once, classifies every URL found in every
// node not already enriched, and submits one job per (node, url, kind)
// the first time it's seen.
func (s *Scanner) Scan(sched Admitter) (Result, error) {
	var res Result

	docs, err := s.graph.Documents()
	if err != nil {
		return res, fmt.Errorf("scan: list documents: %w", err)
	}
	res.DocumentsScanned = len(docs)

	seen := frontier.NewSet[string]()

	for _, doc := range docs {
		for _, node := range doc.Nodes {
			res.NodesScanned++
			if node.AlreadyEnriched(s.propertyPrefix) {
				res.NodesSkipped++
				continue
			}

			for _, raw := range urlclassify.Extract(node.Body) {
				res.URLsFound++

				kind, ok := urlclassify.Classify(raw)
				if !ok || !s.kindEnabled(kind) {
					continue
				}

				dedupKey := node.ID + "\x00" + canonicalDedupKey(raw) + "\x00" + string(kind)
				if seen.Contains(dedupKey) {
					res.JobsDeduped++
					continue
				}
				seen.Add(dedupKey)

				j := job.New(kind, raw, node.ID, doc.ID)
				if sched.Submit(j) {
					res.JobsSubmitted++
				} else {
					res.JobsDeduped++
				}
			}
		}
	}

	return res, nil
}

// canonicalDedupKey normalizes equivalent URL spellings (scheme/host case,
// default ports, trailing slashes, fragments) to a single dedup key so the
// same link written two different ways in the outline is still submitted
// once. The query is kept, so links that differ only in their query (two
// ?v= video IDs) stay distinct. Falls back to the raw string for anything
// url.Parse rejects.
func canonicalDedupKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	canonical := urlutil.Canonicalize(*u)
	canonical.RawQuery = u.RawQuery
	return canonical.String()
}

func (s *Scanner) kindEnabled(kind urlclassify.Kind) bool {
	switch kind {
	case urlclassify.KindVideo:
		return s.processVideo
	case urlclassify.KindSocial:
		return s.processSocial
	case urlclassify.KindPDF:
		return s.processPDF
	default:
		return false
	}
}
