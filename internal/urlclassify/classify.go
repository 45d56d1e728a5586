// Package urlclassify implements the cheap, order-sensitive URL classifier
// the graph scanner uses to assign a kind to each candidate URL, and the
// priority each kind is dispatched at.
package urlclassify

import (
	"net/url"
	"regexp"
	"strings"
)

type Kind string

const (
	KindVideo  Kind = "video"
	KindSocial Kind = "social"
	KindPDF    Kind = "pdf"
)

// Priority levels match spec §3: video=HIGH, social=NORMAL, pdf=LOW.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

func (k Kind) Priority() Priority {
	switch k {
	case KindVideo:
		return PriorityHigh
	case KindSocial:
		return PriorityNormal
	case KindPDF:
		return PriorityLow
	default:
		return PriorityLow
	}
}

var videoHosts = map[string]bool{
	"youtube.com":     true,
	"www.youtube.com": true,
	"youtu.be":        true,
	"vimeo.com":       true,
	"www.vimeo.com":   true,
	"tiktok.com":      true,
	"www.tiktok.com":  true,
	"twitch.tv":       true,
	"www.twitch.tv":   true,
	"dailymotion.com": true,
}

var socialHosts = map[string]bool{
	"twitter.com":     true,
	"www.twitter.com": true,
	"x.com":           true,
	"www.x.com":       true,
	"t.co":            true,
}

// Classify assigns a kind to a URL by the order-sensitive rules of spec
// §4.1: video hosts, then social hosts, then PDF by path convention. It
// never performs I/O, and no caller in this module probes Content-Type
// before classifying: a URL whose path has no PDF marker is not classified
// as a PDF. The PDF extractor's own HEAD request only rejects an
// already-classified URL whose content type is not a PDF.
//
// Classify returns ok=false for a URL that matches none of the known
// kinds.
func Classify(raw string) (kind Kind, ok bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())

	if videoHosts[host] {
		return KindVideo, true
	}
	if socialHosts[host] {
		return KindSocial, true
	}
	if isPDFPath(u.Path) {
		return KindPDF, true
	}
	return "", false
}

func isPDFPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".pdf") || strings.Contains(lower, "/pdf/")
}

// urlPattern extracts bare URLs embedded in free-text node bodies. It is
// intentionally permissive: the classifier above is the real filter.
var urlPattern = regexp.MustCompile(`https?://[^\s)\]]+`)

// Extract returns every URL substring found in body, in first-occurrence
// order, deduplicated.
func Extract(body string) []string {
	matches := urlPattern.FindAllString(body, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?")
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
