// Package backup implements C6, Backup/Rollback: a write-ahead snapshot
// of every file the applier is about to touch, so a failed or
// interrupted run can be rolled back to the graph's prior state.
// Grounded on the snapshot/restore context-manager pattern the original
// Logseq client used around its own write operations.
package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/kgraph/enrich/internal/graphmodel"
	"github.com/kgraph/enrich/internal/metadata"
	"github.com/kgraph/enrich/pkg/fileutil"
)

// Backup owns one run's scratch directory of pre-write file snapshots.
// A backup I/O failure is never fatal to the run: apply proceeds with a
// recorded warning, matching spec's "best-effort safety net, not a
// transactional guarantee" framing for C6.
type Backup struct {
	root      string
	backupDir string
	recorder  metadata.Recorder

	mu        sync.Mutex
	snapshots map[string]string // graph-relative path -> backup-dir path
	enabled   bool
}

func New(root string, recorder metadata.Recorder) *Backup {
	return &Backup{root: root, recorder: recorder, snapshots: map[string]string{}}
}

// Begin creates this run's scratch directory under <root>/.enrich-backup.
// If it cannot be created, backup is disabled for the run and every
// subsequent Snapshot call is a no-op.
func (b *Backup) Begin() {
	id := uuid.NewString()
	b.backupDir = filepath.Join(b.root, ".enrich-backup", id)
	if cerr := fileutil.EnsureDir(b.backupDir); cerr != nil {
		b.recorder.RecordError(time.Now(), "backup", "Backup.Begin", metadata.CauseStorageFailure,
			fmt.Sprintf("could not create backup scratch dir, proceeding without rollback safety net: %v", cerr), nil)
		return
	}
	b.enabled = true
}

// Snapshot copies the current on-disk content at absPath (the full path
// a Graph.Write is about to overwrite) into the scratch directory, if it
// exists and hasn't already been snapshotted this run. A missing file
// (about to be created for the first time) is not an error — there's
// nothing to roll back to.
func (b *Backup) Snapshot(absPath string) {
	if !b.enabled {
		return
	}
	b.mu.Lock()
	if _, already := b.snapshots[absPath]; already {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	content, err := os.ReadFile(absPath)
	if err != nil {
		if !os.IsNotExist(err) {
			b.recorder.RecordError(time.Now(), "backup", "Backup.Snapshot", metadata.CauseStorageFailure,
				fmt.Sprintf("read %s for snapshot: %v", absPath, err), nil)
		}
		return
	}

	dest := filepath.Join(b.backupDir, sanitizeRelPath(relTo(b.root, absPath)))
	if cerr := fileutil.EnsureDir(filepath.Dir(dest)); cerr != nil {
		b.recorder.RecordError(time.Now(), "backup", "Backup.Snapshot", metadata.CauseStorageFailure,
			fmt.Sprintf("prepare snapshot dir for %s: %v", absPath, cerr), nil)
		return
	}
	if err := os.WriteFile(dest, content, 0o644); err != nil {
		if isENOSPC(err) {
			b.recorder.RecordError(time.Now(), "backup", "Backup.Snapshot", metadata.CauseStorageFailure,
				"backup volume out of space, disabling rollback safety net for the rest of this run", nil)
			b.enabled = false
			return
		}
		b.recorder.RecordError(time.Now(), "backup", "Backup.Snapshot", metadata.CauseStorageFailure,
			fmt.Sprintf("write snapshot for %s: %v", absPath, err), nil)
		return
	}

	b.mu.Lock()
	b.snapshots[absPath] = dest
	b.mu.Unlock()
}

// Rollback restores every snapshotted file to its pre-run content. It is
// best-effort: a failure restoring one file does not stop the others
// from being attempted.
func (b *Backup) Rollback() error {
	if !b.enabled {
		return nil
	}
	b.mu.Lock()
	snapshots := make(map[string]string, len(b.snapshots))
	for k, v := range b.snapshots {
		snapshots[k] = v
	}
	b.mu.Unlock()

	var failures []string
	for absPath, snapshotPath := range snapshots {
		content, err := os.ReadFile(snapshotPath)
		if err != nil {
			failures = append(failures, absPath)
			continue
		}
		if err := os.WriteFile(absPath, content, 0o644); err != nil {
			failures = append(failures, absPath)
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("rollback: failed to restore %d file(s): %s", len(failures), strings.Join(failures, ", "))
	}
	return nil
}

// Discard removes the scratch directory once a run completes
// successfully and no rollback is needed.
func (b *Backup) Discard() {
	if !b.enabled {
		return
	}
	if err := os.RemoveAll(b.backupDir); err != nil {
		b.recorder.RecordError(time.Now(), "backup", "Backup.Discard", metadata.CauseStorageFailure,
			fmt.Sprintf("remove backup scratch dir: %v", err), nil)
	}
}

func sanitizeRelPath(relPath string) string {
	return strings.ReplaceAll(relPath, string(filepath.Separator), "__")
}

// relTo returns path relative to root for naming a snapshot file only;
// if it can't be made relative (different volume, odd path), the
// original absolute path is used as-is — sanitizeRelPath still makes it
// a safe flat filename.
func relTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}

func isENOSPC(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}

// Graph wraps a graphmodel.Graph, snapshotting every file before the
// first write touches it this run. Composing it in front of the real
// outline.FileGraph keeps C6 orthogonal to C5 — the applier is unaware
// backup exists.
type Graph struct {
	inner  graphmodel.Graph
	backup *Backup
}

func Wrap(inner graphmodel.Graph, b *Backup) *Graph {
	return &Graph{inner: inner, backup: b}
}

func (g *Graph) Documents() ([]graphmodel.Document, error) { return g.inner.Documents() }

func (g *Graph) Write(doc graphmodel.Document) error {
	g.backup.Snapshot(doc.Path)
	return g.inner.Write(doc)
}

func (g *Graph) IsJournal(path string) bool { return g.inner.IsJournal(path) }
