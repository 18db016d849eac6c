package ingest

import (
	"sort"
	"strings"
)

// tagVocabulary is the fixed set of topics inferred for each chunk from
// its filename and content.
var tagVocabulary = []string{
	"pricing", "retention", "offer", "playbook",
	"strategy", "sales", "marketing", "business",
}

// inferTags matches the vocabulary against the lowercased filename and
// chunk text. Output is sorted for stable metadata.
func inferTags(filename, text string) []string {
	name := strings.ToLower(filename)
	body := strings.ToLower(text)
	var tags []string
	for _, tag := range tagVocabulary {
		if strings.Contains(name, tag) || strings.Contains(body, tag) {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}

// firstHeading returns the first markdown heading of the text, if any,
// to carry as the chunk's section label.
func firstHeading(text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return ""
}
