package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/kgraph/enrich/internal/apply"
	"github.com/kgraph/enrich/internal/backup"
	"github.com/kgraph/enrich/internal/config"
	"github.com/kgraph/enrich/internal/extract"
	"github.com/kgraph/enrich/internal/graphmodel"
	"github.com/kgraph/enrich/internal/metadata"
	"github.com/kgraph/enrich/internal/outline"
	"github.com/kgraph/enrich/internal/scan"
	"github.com/kgraph/enrich/internal/scheduler"
	"github.com/kgraph/enrich/internal/urlclassify"
)

// Report is the single structured, user-visible outcome spec §7 requires:
// success flag, timing, and per-kind counters.
type Report struct {
	Success             bool
	Partial             bool // true when the run was cancelled before draining naturally (S6)
	GraphPath           string
	WallClock           time.Duration
	NodesScanned        int
	JobsSubmitted       int
	JobsCompleted       int
	JobsSubmittedByKind map[urlclassify.Kind]int
	JobsCompletedByKind map[urlclassify.Kind]int
	NodesUpdated        int
	PreviewsExtracted   int
	PropertiesStamped   int
	TopicIndexesWritten int
	ErrorCount          int
	RateLimitedEvents   int
	Retries             int
}

// Run wires the full pipeline — Scan -> Queue -> Drain -> Apply -> Report
// (spec §5) — from a built Config, including the optional backup/rollback
// lifecycle around the applier (spec §4.6). It constructs the real
// filesystem-backed graph and network-backed extractors and delegates to
// runPipeline, which takes those as injected collaborators so it can be
// exercised against fakes in tests. ctx governs cancellation of the drain
// barrier (spec §4.4/§5); a cancelled run still applies whatever pending
// updates were accumulated and reports Partial=true, not Success=false.
func Run(ctx context.Context, cfg config.Config) (Report, error) {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	recorder := metadata.NewZerologRecorder(logger, prometheus.DefaultRegisterer)

	var graph graphmodel.Graph = outline.NewFileGraph(cfg.GraphRoot())

	httpClient := &http.Client{Timeout: cfg.ExtractorTimeout()}

	extractors := map[urlclassify.Kind]extract.Extractor{}
	if cfg.ProcessVideo() {
		extractors[urlclassify.KindVideo] = extract.NewVideoExtractor(httpClient, cfg.UserAgent(), cfg.ExtractorTimeout(), cfg.VideoAPIToken())
	}
	if cfg.ProcessSocial() {
		extractors[urlclassify.KindSocial] = extract.NewSocialExtractor(httpClient, cfg.UserAgent(), cfg.ExtractorTimeout(), cfg.SocialAPIToken())
	}
	if cfg.ProcessPDF() {
		extractors[urlclassify.KindPDF] = extract.NewPDFExtractor(httpClient, cfg.UserAgent(), cfg.ExtractorTimeout(), 32<<20)
	}

	return runPipeline(ctx, cfg, graph, extractors, recorder)
}

// runPipeline is the injectable core of Run: every collaborator it touches
// (graphmodel.Graph, the extractor map, metadata.Recorder) is an interface,
// so tests can substitute in-memory fakes without touching the filesystem
// or network.
func runPipeline(ctx context.Context, cfg config.Config, graph graphmodel.Graph, extractors map[urlclassify.Kind]extract.Extractor, recorder metadata.Recorder) (Report, error) {
	started := time.Now()

	var b *backup.Backup
	if cfg.BackupEnabled() && !cfg.DryRun() {
		b = backup.New(cfg.GraphRoot(), recorder)
		b.Begin()
		graph = backup.Wrap(graph, b)
	}

	sched := scheduler.New(scheduler.Config{
		MaxConcurrent:    cfg.MaxConcurrent(),
		MaxQueueSize:     cfg.MaxQueueSize(),
		RetryDelay:       cfg.RetryDelay(),
		MaxRetries:       cfg.MaxRetries(),
		ExtractorTimeout: cfg.ExtractorTimeout(),
	}, extractors, recorder)

	scanner := scan.New(graph, cfg.PropertyPrefix(), cfg.ProcessVideo(), cfg.ProcessSocial(), cfg.ProcessPDF(), recorder)
	scanResult, err := scanner.Scan(sched)
	if err != nil {
		if b != nil {
			b.Discard()
		}
		return Report{}, fmt.Errorf("scan: %w", err)
	}

	cancelled := sched.Drain(ctx)
	stats := sched.StatsSnapshot()

	applier := apply.New(graph, apply.Config{
		GraphRoot:        cfg.GraphRoot(),
		PropertyPrefix:   cfg.PropertyPrefix(),
		MinPreviewLength: cfg.MinPreviewLength(),
		MaxTopicsPerItem: cfg.MaxTopicsPerItem(),
		DryRun:           cfg.DryRun(),
	}, recorder)

	applyResult, err := applier.Apply(sched.PendingUpdates())
	if err != nil {
		if b != nil {
			if rerr := b.Rollback(); rerr != nil {
				recorder.RecordError(time.Now(), "cli", "Run", metadata.CauseStorageFailure, rerr.Error(), nil)
			}
		}
		return Report{}, fmt.Errorf("apply: %w", err)
	}

	if b != nil {
		if applyResult.DocumentsFailed > 0 {
			if rerr := b.Rollback(); rerr != nil {
				recorder.RecordError(time.Now(), "cli", "Run", metadata.CauseStorageFailure, rerr.Error(), nil)
			}
		} else {
			b.Discard()
		}
	}

	errorCount := len(recorder.Errors())
	totalCompleted := 0
	totalSubmitted := 0
	submittedByKind := make(map[urlclassify.Kind]int, len(stats.Submitted))
	completedByKind := make(map[urlclassify.Kind]int, len(stats.Completed))
	for k, n := range stats.Completed {
		totalCompleted += n
		completedByKind[k] = n
	}
	for k, n := range stats.Submitted {
		totalSubmitted += n
		submittedByKind[k] = n
	}

	// A cancelled run is reported as a partial success (S6), not a
	// failure: Success reflects only whether errors occurred.
	report := Report{
		Success:             errorCount == 0,
		Partial:             cancelled,
		GraphPath:           cfg.GraphRoot(),
		WallClock:           time.Since(started),
		NodesScanned:        scanResult.NodesScanned,
		JobsSubmitted:       totalSubmitted,
		JobsCompleted:       totalCompleted,
		JobsSubmittedByKind: submittedByKind,
		JobsCompletedByKind: completedByKind,
		NodesUpdated:        applyResult.NodesUpdated,
		PreviewsExtracted:   applyResult.PreviewsExtracted,
		PropertiesStamped:   applyResult.PropertiesStamped,
		TopicIndexesWritten: applyResult.TopicIndexesWritten,
		ErrorCount:          errorCount + applyResult.DocumentsFailed + applyResult.TopicIndexesFailed,
		RateLimitedEvents:   stats.RateLimited,
		Retries:             stats.Retried,
	}

	fmt.Printf("Run complete: success=%t partial=%t nodes_scanned=%d jobs_submitted=%d jobs_completed=%d "+
		"nodes_updated=%d previews_extracted=%d properties_stamped=%d topic_indexes_written=%d errors=%d "+
		"rate_limited=%d retries=%d wall_clock=%v\n",
		report.Success, report.Partial, report.NodesScanned, report.JobsSubmitted, report.JobsCompleted,
		report.NodesUpdated, report.PreviewsExtracted, report.PropertiesStamped, report.TopicIndexesWritten,
		report.ErrorCount, report.RateLimitedEvents, report.Retries, report.WallClock)

	return report, nil
}
