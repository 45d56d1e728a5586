// Package job defines the URL-Job, Resource Key and status types that flow
// through the scheduler (spec §3, §4.4).
package job

import (
	"time"

	"github.com/kgraph/enrich/internal/urlclassify"
	"github.com/kgraph/enrich/pkg/hashutil"
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusRunning     Status = "RUNNING"
	StatusRateLimited Status = "RATE_LIMITED"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
)

// ResourceKey is the coarse identifier jobs competing for the same upstream
// quota share. This module discriminates at kind granularity — one
// resource key per kind — which is the minimum spec §3 requires.
type ResourceKey string

func ResourceKeyFor(kind urlclassify.Kind) ResourceKey {
	return ResourceKey(kind)
}

// URLJob is the immutable descriptor spec §3 defines, plus the mutable
// scheduling fields (Attempts, NextEligibleAt, Status) the scheduler owns
// exclusively; no extractor or applier code may write them.
type URLJob struct {
	ID             string
	Kind           urlclassify.Kind
	URL            string
	OwningNodeID   string
	DocumentID     string
	Priority       urlclassify.Priority
	Attempts       int
	NextEligibleAt time.Time
	Status         Status
}

// ID computes the stable job identifier: a hash of (kind, url). Identical
// (kind, url) pairs always produce the same ID, which is the dedup key
// spec §3 mandates.
func ID(kind urlclassify.Kind, canonicalURL string) string {
	sum, err := hashutil.HashBytes([]byte(string(kind)+"\x00"+canonicalURL), hashutil.HashAlgoBLAKE3)
	if err != nil {
		// HashBytes only fails for an unsupported algorithm constant;
		// HashAlgoBLAKE3 is always supported.
		panic(err)
	}
	return sum[:12]
}

func New(kind urlclassify.Kind, canonicalURL, ownerNodeID, documentID string) URLJob {
	return URLJob{
		ID:           ID(kind, canonicalURL),
		Kind:         kind,
		URL:          canonicalURL,
		OwningNodeID: ownerNodeID,
		DocumentID:   documentID,
		Priority:     kind.Priority(),
		Status:       StatusPending,
	}
}

// Resource returns the resource key this job competes under.
func (j URLJob) Resource() ResourceKey {
	return ResourceKeyFor(j.Kind)
}
