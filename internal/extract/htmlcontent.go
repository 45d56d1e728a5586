package extract

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

/*
extractMainText isolates the readable body of a fetched HTML page for use
as analyzer input (spec §4.3's text blob). go-shiori/go-readability (the
Firefox Reader Mode algorithm) is the primary path; when it errors out on a
malformed document, a goquery-based heuristic — strip script/style/nav/
footer/aside, keep the largest remaining text block — is the fallback.
Adapted from the semantic-container-then-heuristic strategy the teacher's
DOM content extractor used for documentation pages.
*/
func extractMainText(doc *goquery.Document, rawHTML []byte) string {
	if text := viaReadability(rawHTML, doc.Url); text != "" {
		return text
	}
	return viaHeuristic(doc)
}

func viaReadability(rawHTML []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(rawHTML), pageURL)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}

var noiseSelectors = []string{
	"script", "style", "nav", "footer", "aside", "header",
	"[role=navigation]", ".cookie-banner", ".sidebar",
}

func viaHeuristic(doc *goquery.Document) string {
	clone := goquery.CloneDocument(doc)
	for _, sel := range noiseSelectors {
		clone.Find(sel).Remove()
	}

	best := ""
	bestLen := 0
	for _, sel := range []string{"main", "article", "body"} {
		clone.Find(sel).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) > bestLen {
				best, bestLen = text, len(text)
			}
		})
		if best != "" {
			break
		}
	}
	return best
}
