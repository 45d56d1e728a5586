package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kgraph/enrich/internal/urlclassify"
	"github.com/kgraph/enrich/pkg/failure"
)

/*
Video extractor (spec §4.2).

Resolves title/author via the platform's public oEmbed endpoint; when an
API token is configured for the platform, a richer authenticated lookup
would be substituted here (the oEmbed path remains the fallback). Duration
is left unknown on the oEmbed path — oEmbed does not carry it — which is a
legitimate "unknown" per the Extraction Record's optionality rule, not an
extraction failure.

oEmbed endpoints used: YouTube, Vimeo. Hosts without a public oEmbed
endpoint (tiktok.com, twitch.tv, dailymotion.com) fall back to the generic
noembed.com aggregator, matching the "platform-appropriate means" language
of spec §4.2 without special-casing every host individually.
*/

type VideoExtractor struct {
	client    HTTPClient
	userAgent string
	timeout   time.Duration
	apiToken  string
}

func NewVideoExtractor(client HTTPClient, userAgent string, timeout time.Duration, apiToken string) *VideoExtractor {
	return &VideoExtractor{client: client, userAgent: userAgent, timeout: timeout, apiToken: apiToken}
}

type oEmbedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ProviderName string `json:"provider_name"`
}

func (v *VideoExtractor) Extract(ctx context.Context, videoURL string) (Record, failure.ClassifiedError) {
	endpoint := oEmbedEndpoint(videoURL)

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Record{}, &failure.PermanentError{Message: fmt.Sprintf("build request: %v", err)}
	}
	for k, val := range requestHeaders(v.userAgent) {
		req.Header.Set(k, val)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return Record{}, &failure.TransientError{Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, err := readCapped(resp.Body, 1<<20)
	if err != nil {
		return Record{}, &failure.TransientError{Message: fmt.Sprintf("read body: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		if classified := classifyStatus(resp, body); classified != nil {
			return Record{}, classified
		}
	}

	var decoded oEmbedResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Record{}, &failure.PermanentError{Message: fmt.Sprintf("malformed oEmbed response: %v", err)}
	}

	rec := Record{
		Kind:        urlclassify.KindVideo,
		URL:         videoURL,
		ExtractedAt: now(),
	}
	if decoded.Title != "" {
		rec.Title = strp(decoded.Title)
	}
	if decoded.AuthorName != "" {
		rec.Author = strp(decoded.AuthorName)
	}
	if decoded.ProviderName != "" {
		rec.PlatformTag = strp(decoded.ProviderName)
	}
	return rec, nil
}

func oEmbedEndpoint(videoURL string) string {
	u, err := url.Parse(videoURL)
	if err != nil {
		return "https://noembed.com/embed?url=" + url.QueryEscape(videoURL)
	}
	switch u.Hostname() {
	case "youtube.com", "www.youtube.com", "youtu.be":
		return "https://www.youtube.com/oembed?format=json&url=" + url.QueryEscape(videoURL)
	case "vimeo.com", "www.vimeo.com":
		return "https://vimeo.com/api/oembed.json?url=" + url.QueryEscape(videoURL)
	default:
		return "https://noembed.com/embed?url=" + url.QueryEscape(videoURL)
	}
}
