package cache

import (
	"regexp"
	"strings"
)

// compileGlob translates an invalidation pattern into an anchored regexp.
// Unlike path.Match, '*' here crosses every character including '/' and ':',
// so a pattern like "plex:*" covers keys that embed base URLs and paths.
// This matches what the Redis backend gets natively from SCAN MATCH, so
// both backends agree on pattern semantics.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")

	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}

	b.WriteString("$")
	return regexp.Compile(b.String())
}
