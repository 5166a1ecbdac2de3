package render

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/mattn/go-runewidth"

	"wiki-explorer/internal/models"
)

const nbsp = "\u00a0"

// Terminal formats articles for a fixed-width terminal. Width is measured
// in display cells; zero disables wrapping.
type Terminal struct {
	Width int
}

// Article writes the formatted article to w and returns the link topics in
// the order they are numbered, so that link n is topics[n-1].
func (t Terminal) Article(w io.Writer, a *models.Article) ([]string, error) {
	var sb strings.Builder

	title := strings.TrimSpace(a.Title)
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("=", max(runewidth.StringWidth(title), 3)) + "\n\n")

	numbers := make(map[string]int)
	var topics []string
	blank := true
	for _, line := range Parse(a.Content) {
		wrapped := t.wrap(t.flatten(line, numbers, &topics))
		if len(wrapped) == 0 {
			if !blank {
				sb.WriteString("\n")
				blank = true
			}
			continue
		}
		for _, l := range wrapped {
			sb.WriteString(l + "\n")
		}
		blank = false
	}

	if len(a.Sources) > 0 {
		if !blank {
			sb.WriteString("\n")
		}
		sb.WriteString("Sources\n")
		for i, s := range a.Sources {
			label := s.Label()
			if label == s.URI {
				sb.WriteString(fmt.Sprintf("  (%d) %s\n", i+1, s.URI))
				continue
			}
			sb.WriteString(fmt.Sprintf("  (%d) %s <%s>\n", i+1, runewidth.Truncate(label, max(t.Width-10, 20), "…"), s.URI))
		}
	}

	_, err := io.WriteString(w, sb.String())
	return topics, err
}

// Choices writes a numbered list of disambiguation candidates.
func (t Terminal) Choices(w io.Writer, query string, choices []models.DisambiguationChoice) error {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%q has several meanings:\n", query))
	for i, c := range choices {
		line := fmt.Sprintf("  %d. %s", i+1, c.Topic)
		if c.Description != "" {
			line += " - " + c.Description
		}
		if t.Width > 0 {
			line = runewidth.Truncate(line, t.Width, "…")
		}
		sb.WriteString(line + "\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// flatten renders a line as plain text with links shown as label[n]. Spaces
// inside a link are kept as non-breaking so wrapping never splits it.
func (t Terminal) flatten(line Line, numbers map[string]int, topics *[]string) string {
	var sb strings.Builder
	for _, seg := range line.Segments {
		if seg.Kind == TextSegment {
			sb.WriteString(seg.Text)
			continue
		}
		n, ok := numbers[seg.Text]
		if !ok {
			*topics = append(*topics, seg.Text)
			n = len(*topics)
			numbers[seg.Text] = n
		}
		sb.WriteString(strings.ReplaceAll(seg.Text, " ", nbsp))
		sb.WriteString(fmt.Sprintf("[%d]", n))
	}
	return sb.String()
}

func (t Terminal) wrap(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return r != '\u00a0' && unicode.IsSpace(r)
	})
	if len(words) == 0 {
		return nil
	}

	var lines []string
	var current strings.Builder
	width := 0
	for _, word := range words {
		ww := runewidth.StringWidth(word)
		if width > 0 && t.Width > 0 && width+1+ww > t.Width {
			lines = append(lines, current.String())
			current.Reset()
			width = 0
		}
		if width > 0 {
			current.WriteString(" ")
			width++
		}
		current.WriteString(word)
		width += ww
	}
	lines = append(lines, current.String())

	for i := range lines {
		lines[i] = strings.ReplaceAll(lines[i], nbsp, " ")
	}
	return lines
}
