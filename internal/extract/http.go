package extract

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/kgraph/enrich/pkg/failure"
)

// HTTPClient is the HTTP collaborator spec §6 describes: GET/HEAD with
// timeout, redirect cap and User-Agent override, already configured by the
// caller. Extractors never construct their own *http.Client — it is
// injected, the same discipline the teacher's fetcher follows, so stubbing
// it in tests (scenarios S1-S6) is a plain struct literal.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// retryAfterPhrase and waitPhrase resolve spec §9's open question: honour
// both forms, header first. Grounded on the original Python queue's
// "retry after N" / "wait N" phrase parser.
var (
	retryAfterPhrase = regexp.MustCompile(`(?i)retry[- ]after[:\s]+(\d+)`)
	waitPhrase       = regexp.MustCompile(`(?i)wait[:\s]+(\d+)`)
)

// classifyStatus turns an HTTP response into a failure.ClassifiedError
// following the same status-code switch as the teacher's HTML fetcher:
// 5xx and network failures are Transient, 429 is RateLimited (with
// Retry-After parsed when present), 403/4xx otherwise are Permanent.
// resp is nil only signals a non-HTTP failure path; callers pass the real
// response for status-based classification.
func classifyStatus(resp *http.Response, body []byte) failure.ClassifiedError {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		after := parseRetryAfter(resp.Header.Get("Retry-After"), string(body))
		return &failure.RateLimitedError{
			Message: "rate limited (429)",
			After:   after,
		}
	case resp.StatusCode >= 500:
		return &failure.TransientError{
			Message: fmt.Sprintf("server error: %d", resp.StatusCode),
		}
	case resp.StatusCode == http.StatusForbidden:
		return &failure.PermanentError{Message: "access forbidden (403)"}
	case resp.StatusCode >= 400:
		return &failure.PermanentError{Message: fmt.Sprintf("client error: %d", resp.StatusCode)}
	default:
		return nil
	}
}

// parseRetryAfter tries, in order: the Retry-After header (seconds form),
// a "retry after N" phrase in the body, a "wait N" phrase in the body.
// Returns nil when none are present, letting the caller fall back to its
// configured default.
func parseRetryAfter(header, body string) *time.Duration {
	if header != "" {
		if secs, err := strconv.Atoi(header); err == nil {
			d := time.Duration(secs) * time.Second
			return &d
		}
	}
	if m := retryAfterPhrase.FindStringSubmatch(body); m != nil {
		if secs, err := strconv.Atoi(m[1]); err == nil {
			d := time.Duration(secs) * time.Second
			return &d
		}
	}
	if m := waitPhrase.FindStringSubmatch(body); m != nil {
		if secs, err := strconv.Atoi(m[1]); err == nil {
			d := time.Duration(secs) * time.Second
			return &d
		}
	}
	return nil
}

// readCapped reads at most maxBytes from r, tolerating streams that exceed
// the cap by truncating rather than failing (spec §4.2 PDF requirement,
// generalized to every extractor's bounded download).
func readCapped(r io.Reader, maxBytes int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxBytes))
}

func requestHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "*/*",
		"Accept-Language": "en-US,en;q=0.5",
		"Accept-Encoding": "gzip, deflate, br",
		"DNT":             "1",
		"Connection":      "keep-alive",
	}
}
