package parse

import (
	"fmt"
	"regexp"
	"strings"
)

var sourceRe = regexp.MustCompile(`^([a-z][a-z0-9_-]*)(?:[:/]\s*(.+))?$`)

// ParsedSource holds the structured data parsed from a check-in's free-form
// source string, e.g. "mobile:ios" or "wearable/band-2".
type ParsedSource struct {
	Channel string
	Device  string
}

// ParseSource extracts the reporting channel and optional device identifier
// from a raw source string.
func ParseSource(raw string) (ParsedSource, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ParsedSource{}, fmt.Errorf("empty source")
	}

	m := sourceRe.FindStringSubmatch(s)
	if m == nil {
		return ParsedSource{}, fmt.Errorf("unable to parse source: %q", raw)
	}

	return ParsedSource{
		Channel: m[1],
		Device:  strings.TrimSpace(m[2]),
	}, nil
}
