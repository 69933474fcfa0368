package frontier

import (
	"regexp"
	"strings"
)

const (
	maxObjectiveTerms = 5
	minTermLength     = 4 // terms longer than 3 characters

	maxLinksScanned = 100
	maxLinksKept    = 20
)

var markdownLinkPattern = regexp.MustCompile(`\[[^\]]*\]\((http[^)\s]+)\)`)

// ObjectiveTerms extracts up to 5 lower-cased terms longer than 3
// characters from the agent's objective.
func ObjectiveTerms(objective string) []string {
	var terms []string
	for _, word := range strings.Fields(strings.ToLower(objective)) {
		if len(word) < minTermLength {
			continue
		}
		terms = append(terms, word)
		if len(terms) == maxObjectiveTerms {
			break
		}
	}
	return terms
}

// Relevant reports whether a fetched page matches the objective: every
// term must appear as a substring of the lower-cased title plus content.
// An empty term set never matches.
func Relevant(terms []string, title, content string) bool {
	if len(terms) == 0 {
		return false
	}

	haystack := strings.ToLower(title + " " + content)
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

// ExtractLinks pulls markdown-style links from content: up to 100 unique
// URLs are scanned, and the first 20 are returned.
func ExtractLinks(content string) []string {
	matches := markdownLinkPattern.FindAllStringSubmatch(content, -1)

	seen := make(map[string]bool)
	var links []string
	for _, m := range matches {
		url := m[1]
		if seen[url] {
			continue
		}
		seen[url] = true
		links = append(links, url)
		if len(links) == maxLinksScanned {
			break
		}
	}

	if len(links) > maxLinksKept {
		links = links[:maxLinksKept]
	}
	return links
}
