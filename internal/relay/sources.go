package relay

import (
	"strings"

	"wiki-explorer/internal/gemini"
	"wiki-explorer/internal/models"
)

// NormalizeCitations coerces raw grounding records into sources. Records
// without a URI are dropped and a missing title becomes placeholder.
func NormalizeCitations(raw []gemini.RawCitation, placeholder string) []models.Source {
	out := make([]models.Source, 0, len(raw))
	for _, r := range raw {
		uri := strings.TrimSpace(r.URI)
		if uri == "" {
			continue
		}
		title := strings.TrimSpace(r.Title)
		if title == "" {
			title = placeholder
		}
		out = append(out, models.Source{URI: uri, Title: title})
	}
	return out
}

// DedupeSources collapses sources sharing a URI. Each URI keeps the position
// of its first occurrence and the title of its last.
func DedupeSources(sources []models.Source) []models.Source {
	index := make(map[string]int, len(sources))
	out := make([]models.Source, 0, len(sources))
	for _, s := range sources {
		if i, ok := index[s.URI]; ok {
			out[i].Title = s.Title
			continue
		}
		index[s.URI] = len(out)
		out = append(out, s)
	}
	return out
}
