package phases

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// referencesHeading marks the generated source list. AppendReferences strips
// any section carrying this heading before recomputing, which is what makes
// the pass idempotent.
const referencesHeading = "## References"

var (
	// [Source: <name>](<url>)
	sourceLinkPattern = regexp.MustCompile(`\[Source:[^\]]*\]\((https?://[^)\s]+)\)`)
	// [Source: <bare url>] with no trailing link
	bareSourcePattern = regexp.MustCompile(`\[Source:\s*(https?://[^\]\s]+)\s*\](?:\()?`)
)

// AppendReferences is the post-processing pass that closes a research run:
// it collects every cited URL, deduplicates and sorts them, and appends a
// numbered source list under a References heading. Inline citations are
// left in place. A document citing nothing gets no References section; its
// trailing newlines are normalised to exactly one. Running the pass twice
// yields the same text.
func AppendReferences(doc string) string {
	body := stripReferencesSection(doc)

	seen := map[string]bool{}
	var urls []string
	for _, re := range []*regexp.Regexp{sourceLinkPattern, bareSourcePattern} {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			url := strings.TrimRight(m[1], ".,;")
			if !seen[url] {
				seen[url] = true
				urls = append(urls, url)
			}
		}
	}
	if len(urls) == 0 {
		return strings.TrimRight(body, "\n") + "\n"
	}
	sort.Strings(urls)

	var sb strings.Builder
	sb.WriteString(strings.TrimRight(body, "\n"))
	sb.WriteString("\n\n")
	sb.WriteString(referencesHeading)
	sb.WriteString("\n\n")
	for i, url := range urls {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, url)
	}
	return sb.String()
}

// stripReferencesSection removes a previously generated References section
// so a second pass starts from the same body the first one saw. Only a
// trailing section is removed; a References heading buried mid-document
// (written by the model itself) is left alone when real content follows it.
func stripReferencesSection(doc string) string {
	idx := strings.LastIndex(doc, "\n"+referencesHeading+"\n")
	if idx < 0 {
		if strings.HasPrefix(doc, referencesHeading+"\n") {
			idx = 0
		} else {
			return doc
		}
	}

	tail := doc[idx:]
	for _, line := range strings.Split(tail, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == referencesHeading {
			continue
		}
		if !numberedURLLine(trimmed) {
			return doc
		}
	}
	return doc[:idx]
}

func numberedURLLine(line string) bool {
	dot := strings.Index(line, ". ")
	if dot <= 0 {
		return false
	}
	for _, c := range line[:dot] {
		if c < '0' || c > '9' {
			return false
		}
	}
	rest := strings.TrimSpace(line[dot+2:])
	return strings.HasPrefix(rest, "http://") || strings.HasPrefix(rest, "https://")
}
