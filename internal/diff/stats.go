// Package diff measures and renders line-level drift between two versions
// of a file's content.
package diff

import "strings"

// Stats holds approximate added and removed line counts for one file.
type Stats struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
}

// Lines splits content on newline boundaries. A trailing newline does not
// produce a final empty line, and empty content has no lines at all.
func Lines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n")
}

// Count compares original and current content by distinct-line membership:
// every line occurrence in current whose text appears nowhere in original
// counts as an addition, and symmetrically for deletions. Reordering or
// duplicating existing lines is not counted. The result is a cheap
// magnitude for badges and summaries, not an alignment.
func Count(original, current string) Stats {
	oldLines := Lines(original)
	newLines := Lines(current)

	oldSet := make(map[string]struct{}, len(oldLines))
	for _, line := range oldLines {
		oldSet[line] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(newLines))
	for _, line := range newLines {
		newSet[line] = struct{}{}
	}

	var stats Stats
	for _, line := range newLines {
		if _, ok := oldSet[line]; !ok {
			stats.Additions++
		}
	}
	for _, line := range oldLines {
		if _, ok := newSet[line]; !ok {
			stats.Deletions++
		}
	}
	return stats
}
