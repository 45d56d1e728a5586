// Package topic implements C3, the Topic Analyzer: a deterministic
// ranking pipeline over a text blob that produces at most N topic tags
// (spec §4.3).
package topic

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultCategories is the fixed domain-category rubric spec §4.3 names.
var DefaultCategories = map[string][]string{
	"technology":    {"software", "computer", "programming", "code", "tech", "app", "internet", "digital"},
	"science":       {"research", "experiment", "theory", "physics", "chemistry", "biology", "scientific"},
	"education":     {"learn", "teach", "course", "tutorial", "lesson", "student", "school", "university"},
	"business":      {"company", "market", "startup", "finance", "investment", "revenue", "strategy"},
	"health":        {"health", "medical", "doctor", "disease", "treatment", "wellness", "fitness"},
	"entertainment": {"movie", "music", "game", "show", "celebrity", "film", "concert"},
	"news":          {"breaking", "report", "announced", "government", "election", "policy"},
	"lifestyle":     {"travel", "food", "fashion", "home", "recipe", "lifestyle"},
	"social":        {"friends", "community", "social", "network", "share", "follow"},
	"academic":      {"paper", "journal", "study", "thesis", "citation", "peer-reviewed", "abstract"},
}

// DefaultStopwords is the English default stopword list spec §4.3 refers
// to as "configuration".
var DefaultStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "all": true, "can": true, "had": true, "her": true, "was": true,
	"one": true, "our": true, "out": true, "day": true, "get": true, "has": true,
	"him": true, "his": true, "how": true, "man": true, "new": true, "now": true,
	"old": true, "see": true, "two": true, "way": true, "who": true, "boy": true,
	"did": true, "its": true, "let": true, "put": true, "say": true, "she": true,
	"too": true, "use": true, "that": true, "with": true, "this": true, "from": true,
	"have": true, "they": true, "been": true, "were": true, "your": true, "into": true,
	"about": true, "which": true, "their": true, "there": true, "would": true,
}

// DomainAllowlist is the curated domain-term allowlist for multi-word
// candidates that fire regardless of frequency.
var DomainAllowlist = map[string]bool{
	"machine learning": true, "neural network": true, "deep learning": true,
	"natural language processing": true, "artificial intelligence": true,
	"data science": true, "open source": true, "climate change": true,
}

type candidate struct {
	tag   string
	score float64
	words int
}

var tokenPattern = regexp.MustCompile(`[A-Za-z]+`)
var quotedPattern = regexp.MustCompile(`"([^"]{3,40})"`)

// PlatformHint narrows which platform-specific candidate hooks fire (spec
// §4.3 candidate pool #4).
type PlatformHint string

const (
	PlatformNone   PlatformHint = ""
	PlatformSocial PlatformHint = "social"
	PlatformPDF    PlatformHint = "pdf"
)

// Analyze derives at most maxTopics ranked topic tags from text. title is
// concatenated into text with extra duplication weight (title tokens
// appear in both the title-token candidate pool and the term-frequency
// pool), matching "title weighted by duplication".
func Analyze(title, text string, hint PlatformHint, maxTopics int) []string {
	titleTokens := tokenize(title)
	bodyTokens := tokenize(text)
	allTokens := append(append([]string{}, titleTokens...), append(titleTokens, bodyTokens...)...)

	if len(allTokens) == 0 {
		return nil
	}

	freq := make(map[string]int, len(allTokens))
	for _, t := range allTokens {
		freq[t]++
	}
	total := len(allTokens)

	titleSet := make(map[string]bool, len(titleTokens))
	for _, t := range titleTokens {
		titleSet[t] = true
	}

	scores := make(map[string]float64)
	wordCount := make(map[string]int)

	addCandidate := func(tag string, words int, score float64) {
		scores[tag] += score
		if wordCount[tag] == 0 {
			wordCount[tag] = words
		}
	}

	// 1. Category hits.
	lowerText := strings.ToLower(title + " " + text)
	for category, keywords := range DefaultCategories {
		for _, kw := range keywords {
			if strings.Contains(lowerText, kw) {
				addCandidate(category, 1, 5)
				break
			}
		}
	}

	// 2. Bigrams/trigrams: frequency >= 2 or curated allowlist.
	for n := 2; n <= 3; n++ {
		ngramFreq := make(map[string]int)
		for i := 0; i+n <= len(bodyTokens); i++ {
			words := bodyTokens[i : i+n]
			if containsStopword(words) {
				continue
			}
			ngramFreq[strings.Join(words, " ")]++
		}
		for gram, count := range ngramFreq {
			_, curated := DomainAllowlist[gram]
			if count < 2 && !curated {
				continue
			}
			score := float64(2*count) + float64(2*n)
			if strings.Contains(lowerText, gram) && titleContainsGram(title, gram) {
				score += 10
			}
			if curated {
				score += 8
			}
			addCandidate(strings.ReplaceAll(gram, " ", "-"), n, score)
		}
	}

	// 3. Single tokens: tf heuristic + prefix-variant boost.
	prefixCount := make(map[string]int)
	for t := range freq {
		if len(t) >= 4 {
			prefixCount[t[:4]]++
		}
	}
	for t, f := range freq {
		if DefaultStopwords[t] || len(t) < 3 {
			continue
		}
		tf := 1 + 100*float64(f)/float64(total)
		variantBoost := 0.0
		if len(t) >= 4 {
			variantBoost = float64(prefixCount[t[:4]]-1) * 0.1
		}
		score := tf + variantBoost
		score += 2 * float64(f)
		if titleSet[t] {
			score += 10
		}
		if hasCategoryName(t) {
			score += 5
		}
		if hasTechnicalMarker(t) {
			score += 2
		}
		if float64(f) > 0.05*float64(total) {
			score -= 3
		}
		addCandidate(t, 1, score)
	}

	// 4. Platform hooks.
	switch hint {
	case PlatformSocial:
		for _, tag := range hashtags(text) {
			addCandidate(tag, 1, 12)
		}
	case PlatformPDF:
		if containsAcademicMarkers(lowerText) {
			addCandidate("academic", 1, 12)
		}
	}

	// 5. Title tokens: capitalized tokens + quoted phrases.
	for _, cap := range capitalizedTokens(title) {
		tag := strings.ToLower(cap)
		if len(tag) < 3 || DefaultStopwords[tag] {
			continue
		}
		addCandidate(tag, 1, 10)
	}
	for _, m := range quotedPattern.FindAllStringSubmatch(title, -1) {
		phrase := strings.ToLower(strings.TrimSpace(m[1]))
		if phrase == "" {
			continue
		}
		words := len(strings.Fields(phrase))
		addCandidate(strings.ReplaceAll(phrase, " ", "-"), words, 10+float64(2*words))
	}

	candidates := make([]candidate, 0, len(scores))
	for tag, score := range scores {
		candidates = append(candidates, candidate{tag: tag, score: score, words: wordCount[tag]})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].tag < candidates[j].tag
	})

	return selectTags(candidates, maxTopics)
}

// selectTags walks the sorted candidate list emitting a tag only if its
// root (first hyphenated component) was not already emitted by a
// single-token tag; multi-word tags always pass.
func selectTags(candidates []candidate, maxTopics int) []string {
	emittedRoots := make(map[string]bool)
	var out []string
	for _, c := range candidates {
		if len(out) >= maxTopics {
			break
		}
		root := strings.SplitN(c.tag, "-", 2)[0]
		if c.words <= 1 {
			if emittedRoots[root] {
				continue
			}
			emittedRoots[root] = true
		}
		out = append(out, c.tag)
	}
	return out
}

func tokenize(s string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(s), -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) >= 3 {
			out = append(out, m)
		}
	}
	return out
}

func containsStopword(words []string) bool {
	for _, w := range words {
		if DefaultStopwords[w] {
			return true
		}
	}
	return false
}

func titleContainsGram(title, gram string) bool {
	return strings.Contains(strings.ToLower(title), gram)
}

func hasCategoryName(t string) bool {
	_, ok := DefaultCategories[t]
	return ok
}

func hasTechnicalMarker(t string) bool {
	for _, r := range t {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return strings.Contains(t, "api") || strings.Contains(t, "http") || strings.Contains(t, "sdk")
}

var hashtagPattern = regexp.MustCompile(`#(\w{3,})`)

func hashtags(text string) []string {
	var out []string
	for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		out = append(out, strings.ToLower(m[1]))
	}
	return out
}

var capitalizedPattern = regexp.MustCompile(`\b[A-Z][a-zA-Z]{2,}\b`)

func capitalizedTokens(title string) []string {
	return capitalizedPattern.FindAllString(title, -1)
}

func containsAcademicMarkers(lowerText string) bool {
	for _, marker := range []string{"abstract", "doi:", "journal of", "proceedings of", "peer-reviewed", "citation"} {
		if strings.Contains(lowerText, marker) {
			return true
		}
	}
	return false
}
