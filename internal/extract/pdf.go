package extract

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kgraph/enrich/internal/urlclassify"
	"github.com/kgraph/enrich/pkg/failure"
)

/*
PDF extractor (spec §4.2).

Issues HEAD to confirm Content-Type and Content-Length; then GETs a
size-bounded prefix (maxBodyBytes) to recover title/author/page-count and a
short text preview. Title/author/page count are read from the document
info dictionary when present in the captured prefix; when the PDF is
encrypted, linearized unusually, or the info dictionary falls outside the
captured prefix, those fields are left unknown rather than failing the
extraction — only a HEAD/GET failure or a non-PDF content type is a hard
error.
*/

type PDFExtractor struct {
	client       HTTPClient
	userAgent    string
	timeout      time.Duration
	maxBodyBytes int64
}

func NewPDFExtractor(client HTTPClient, userAgent string, timeout time.Duration, maxBodyBytes int64) *PDFExtractor {
	return &PDFExtractor{client: client, userAgent: userAgent, timeout: timeout, maxBodyBytes: maxBodyBytes}
}

func (p *PDFExtractor) Extract(ctx context.Context, docURL string) (Record, failure.ClassifiedError) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	sizeBytes, cerr := p.headProbe(ctx, docURL)
	if cerr != nil {
		return Record{}, cerr
	}

	body, cerr := p.boundedGet(ctx, docURL)
	if cerr != nil {
		return Record{}, cerr
	}

	rec := Record{
		Kind:        urlclassify.KindPDF,
		URL:         docURL,
		ExtractedAt: now(),
		PlatformTag: strp("pdf"),
	}
	if sizeBytes > 0 {
		rec.SizeBytes = &sizeBytes
	}

	if title := pdfInfoField(body, "/Title"); title != "" {
		rec.Title = strp(title)
	}
	if author := pdfInfoField(body, "/Author"); author != "" {
		rec.Author = strp(author)
	}
	if pages := strings.Count(string(body), "/Type /Page") + strings.Count(string(body), "/Type/Page"); pages > 0 {
		rec.PageCount = &pages
	}

	if preview := pdfTextPreview(body); preview != "" {
		rec.PreviewText = strp(preview)
	}

	return rec, nil
}

func (p *PDFExtractor) headProbe(ctx context.Context, docURL string) (int64, failure.ClassifiedError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, docURL, nil)
	if err != nil {
		return 0, &failure.PermanentError{Message: fmt.Sprintf("build request: %v", err)}
	}
	for k, v := range requestHeaders(p.userAgent) {
		req.Header.Set(k, v)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, &failure.TransientError{Message: fmt.Sprintf("head probe failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if classified := classifyStatus(resp, nil); classified != nil {
			return 0, classified
		}
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(strings.ToLower(ct), "application/pdf") {
		return 0, &failure.PermanentError{Message: fmt.Sprintf("non-PDF content type: %s", ct)}
	}

	size, _ := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	return size, nil
}

func (p *PDFExtractor) boundedGet(ctx context.Context, docURL string) ([]byte, failure.ClassifiedError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, &failure.PermanentError{Message: fmt.Sprintf("build request: %v", err)}
	}
	for k, v := range requestHeaders(p.userAgent) {
		req.Header.Set(k, v)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &failure.TransientError{Message: fmt.Sprintf("get failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if classified := classifyStatus(resp, nil); classified != nil {
			return nil, classified
		}
	}

	body, err := readCapped(resp.Body, p.maxBodyBytes)
	if err != nil {
		return nil, &failure.TransientError{Message: fmt.Sprintf("read body: %v", err)}
	}
	return body, nil
}

// pdfInfoField does a bare-bones scan for "/Key (value)" inside the raw
// PDF bytes captured so far. It tolerates a truncated document info
// dictionary by simply returning "" when the key isn't found in the
// captured prefix (spec's "tolerate streams that exceed the size cap").
func pdfInfoField(body []byte, key string) string {
	s := string(body)
	idx := strings.Index(s, key)
	if idx == -1 {
		return ""
	}
	rest := s[idx+len(key):]
	start := strings.IndexByte(rest, '(')
	if start == -1 {
		return ""
	}
	end := strings.IndexByte(rest[start:], ')')
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(rest[start+1 : start+end])
}

// pdfTextPreview extracts a short run of printable text from the captured
// bytes, good enough to feed the topic analyzer without a full PDF content
// stream decoder (out of scope here — this is a preview, not a renderer).
func pdfTextPreview(body []byte) string {
	var sb strings.Builder
	run := 0
	for _, b := range body {
		if b >= 32 && b < 127 {
			sb.WriteByte(b)
			run++
		} else {
			if run > 0 {
				sb.WriteByte(' ')
			}
			run = 0
		}
		if sb.Len() >= 2000 {
			break
		}
	}
	return strings.TrimSpace(sb.String())
}
