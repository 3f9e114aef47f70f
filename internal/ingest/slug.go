package ingest

import "strings"

var pathSeparators = strings.NewReplacer("/", "-", "\\", "-")

// Slugify converts a filesystem path into a URL-safe project identifier:
// path separators become hyphens, runs of hyphens collapse to one, and
// leading/trailing hyphens are stripped. Pure and total for any input.
func Slugify(path string) string {
	slug := pathSeparators.Replace(path)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}

// ProjectName derives a display name from a project directory: the final
// path element, or the raw path when there isn't one.
func ProjectName(path string) string {
	trimmed := strings.TrimRight(path, "/\\")
	name := trimmed[strings.LastIndexAny(trimmed, "/\\")+1:]
	if name == "" {
		return path
	}
	return name
}
