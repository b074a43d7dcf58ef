package watch

import (
	"path"
	"path/filepath"
	"strings"
)

// matchesAny reports whether rel matches at least one watch glob. An empty
// glob list matches everything.
func matchesAny(rel string, globs []string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if matchGlob(rel, g) {
			return true
		}
	}
	return false
}

// matchGlob matches a single glob against a workspace-relative slash path.
// "**/" spans any number of directories, including none; a pattern without
// a separator matches against the base name.
func matchGlob(rel, pattern string) bool {
	pattern = strings.TrimSpace(filepath.ToSlash(pattern))
	if pattern == "" {
		return false
	}
	if pattern == "**" || pattern == "**/*" {
		return true
	}

	if i := strings.Index(pattern, "**/"); i >= 0 {
		prefix := pattern[:i]
		rest := pattern[i+3:]
		if !strings.HasPrefix(rel, prefix) {
			return false
		}
		remainder := strings.TrimPrefix(rel, prefix)
		segments := strings.Split(remainder, "/")
		for j := range segments {
			if ok, _ := path.Match(rest, strings.Join(segments[j:], "/")); ok {
				return true
			}
		}
		return false
	}

	if strings.HasSuffix(pattern, "/**") {
		base := strings.TrimSuffix(pattern, "/**")
		return rel == base || strings.HasPrefix(rel, base+"/")
	}

	if strings.Contains(pattern, "/") {
		ok, _ := path.Match(pattern, rel)
		return ok
	}
	ok, _ := path.Match(pattern, path.Base(rel))
	return ok
}

// excludedPath applies the substring exclusion patterns shared with the
// change observer.
func excludedPath(rel string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(rel, p) {
			return true
		}
	}
	return false
}
