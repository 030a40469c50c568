// Package casting turns the extracted timelines of a job into LLM generated
// notes: it merges transcript and on-screen events into one chronological
// text, sends one request per configured note type and collects the answers.
package casting

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/rsamf/mink/internal/datastore"
)

// Source tells where a merged line came from.
type Source string

const (
	SourceTranscript Source = "Transcript"
	SourceOnScreen   Source = "On-Screen"
)

// Line is one event on the merged timeline.
type Line struct {
	Source  Source
	Start   float64
	End     float64
	Content string
}

// Merge interleaves both timelines by start time. The sort is stable and
// transcript lines are added first, so on equal starts speech precedes
// screen text and each source keeps its own order.
func Merge(transcript []datastore.TranscriptEvent, ocr []datastore.OnScreenEvent) []Line {
	lines := make([]Line, 0, len(transcript)+len(ocr))
	for i := range transcript {
		e := &transcript[i]
		lines = append(lines, Line{Source: SourceTranscript, Start: e.Start, End: e.End, Content: e.Content})
	}
	for i := range ocr {
		e := &ocr[i]
		lines = append(lines, Line{Source: SourceOnScreen, Start: e.Start, End: e.End, Content: e.Content})
	}
	slices.SortStableFunc(lines, func(a, b Line) int {
		return cmp.Compare(a.Start, b.Start)
	})
	return lines
}

// Compose renders lines as
//
//	[Transcript | 0 - 4]: welcome everyone
//	[On-Screen | 2 - 30]: Q3 Roadmap
//
// one per line, each newline terminated. Times are whole seconds.
func Compose(lines []Line) string {
	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "[%s | %.0f - %.0f]: %s\n", l.Source, l.Start, l.End, l.Content)
	}
	return b.String()
}

// MeetingText is Compose(Merge(transcript, ocr)).
func MeetingText(transcript []datastore.TranscriptEvent, ocr []datastore.OnScreenEvent) string {
	return Compose(Merge(transcript, ocr))
}

// BuildPrompt prefixes the meeting text with a note type's instructions.
func BuildPrompt(prompt, meetingText string) string {
	return prompt + "\n\n" + meetingText
}
