package chunker

import (
	"fmt"
	"strings"
)

// maxSlugChars truncates each heading slug.
const maxSlugChars = 40

// SectionAnchor derives the deterministic anchor for a heading path:
// "h{level}:{slug1}.{slug2}..." where level is the path length. An empty
// path yields "root".
func SectionAnchor(headingPath []string) string {
	if len(headingPath) == 0 {
		return "root"
	}
	slugs := make([]string, len(headingPath))
	for i, h := range headingPath {
		slugs[i] = slugify(h)
	}
	return fmt.Sprintf("h%d:%s", len(headingPath), strings.Join(slugs, "."))
}

// slugify lowercases, keeps ASCII alphanumerics, maps spaces to '-',
// collapses '-' runs, and truncates to maxSlugChars.
func slugify(s string) string {
	var sb strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastDash = false
		case r == ' ' || r == '-':
			if !lastDash {
				sb.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.TrimRight(sb.String(), "-")
	if len(slug) > maxSlugChars {
		slug = slug[:maxSlugChars]
	}
	return slug
}
