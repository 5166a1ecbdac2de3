// internal/render/parse.go
package render

import (
	"regexp"
	"strings"
)

type SegmentKind int

const (
	TextSegment SegmentKind = iota
	LinkSegment
)

// Segment is a run of literal text or a concept link. For links Text is the
// topic between the brackets.
type Segment struct {
	Kind SegmentKind
	Text string
}

// Line is one line of article text. A line without segments is a block
// boundary.
type Line struct {
	Segments []Segment
}

// Empty reports whether the line has no content.
func (l Line) Empty() bool {
	return len(l.Segments) == 0
}

var conceptPattern = regexp.MustCompile(`\[\[(.*?)\]\]`)

// Parse splits content into lines and each line into segments. Markers never
// span lines, so a marker cut by a chunk boundary stays literal until the
// rest of it arrives.
func Parse(content string) []Line {
	rawLines := strings.Split(content, "\n")
	lines := make([]Line, 0, len(rawLines))
	for _, raw := range rawLines {
		lines = append(lines, parseLine(strings.TrimSuffix(raw, "\r")))
	}
	return lines
}

func parseLine(raw string) Line {
	var line Line
	addText := func(s string) {
		if s == "" {
			return
		}
		if n := len(line.Segments); n > 0 && line.Segments[n-1].Kind == TextSegment {
			line.Segments[n-1].Text += s
			return
		}
		line.Segments = append(line.Segments, Segment{Kind: TextSegment, Text: s})
	}

	pos := 0
	for _, m := range conceptPattern.FindAllStringSubmatchIndex(raw, -1) {
		addText(raw[pos:m[0]])
		topic := raw[m[2]:m[3]]
		if strings.TrimSpace(topic) == "" {
			addText(raw[m[0]:m[1]])
		} else {
			line.Segments = append(line.Segments, Segment{Kind: LinkSegment, Text: topic})
		}
		pos = m[1]
	}
	addText(raw[pos:])
	return line
}

// Links returns the distinct concept topics of content in reading order.
func Links(content string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, line := range Parse(content) {
		for _, seg := range line.Segments {
			if seg.Kind != LinkSegment {
				continue
			}
			if _, ok := seen[seg.Text]; ok {
				continue
			}
			seen[seg.Text] = struct{}{}
			out = append(out, seg.Text)
		}
	}
	return out
}
