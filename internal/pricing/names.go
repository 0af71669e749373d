package pricing

import (
	"regexp"
	"strings"
)

var (
	// claude-opus-4-1-20250805, claude-sonnet-4-20250514
	familyFirst = regexp.MustCompile(`^claude-(opus|sonnet|haiku)-(\d+)(?:-(\d{1,2})\b)?`)
	// claude-3-5-sonnet-20241022, claude-3-haiku-20240307
	versionFirst = regexp.MustCompile(`^claude-(\d+)(?:-(\d{1,2}))?-(opus|sonnet|haiku)\b`)
)

// DisplayName turns a model id into a short human label such as "Opus 4.1".
// Unrecognized ids are returned unchanged.
func DisplayName(model string) string {
	m := canonical(model)
	if match := familyFirst.FindStringSubmatch(m); match != nil {
		return label(match[1], match[2], match[3])
	}
	if match := versionFirst.FindStringSubmatch(m); match != nil {
		return label(match[3], match[1], match[2])
	}
	return model
}

func label(family, major, minor string) string {
	name := strings.ToUpper(family[:1]) + family[1:] + " " + major
	if minor != "" {
		name += "." + minor
	}
	return name
}
