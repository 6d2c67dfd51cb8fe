// Package linediff renders the difference between two JSON-serialisable
// values as a line-oriented diff over their canonical indented textual form.
//
// The canonical form is encoding/json's two-space indented output, which
// sorts object keys, so the diff is deterministic for a given pair of
// values regardless of how they were constructed.
package linediff

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cubicdaiya/gonp"
)

// ContextAll disables truncation of unchanged runs.
const ContextAll = -1

// ElisionMarker is emitted in place of truncated context lines.
const ElisionMarker = "..."

// Diff computes a line diff between the canonical forms of a and b and
// returns it as one string block per run of added, removed or unchanged
// lines. Added lines are prefixed "+ ", removed lines "- " and unchanged
// lines "  ". Unchanged runs longer than the context budget are truncated
// around an elision marker; pass ContextAll as context to keep them whole.
//
// The budget for the first and last run is context+1 lines since the
// opening and closing brace of the serialised form occupy a line each that
// shouldn't count against the context.
func Diff(a, b any, context int) []string {
	chunks := lineChunks(canonicalLines(a), canonicalLines(b))

	blocks := make([]string, 0, len(chunks))

	for i, c := range chunks {
		var lines []string

		switch c.typ {
		case gonp.SesAdd:
			lines = prefixLines("+ ", c.lines)
		case gonp.SesDelete:
			lines = prefixLines("- ", c.lines)
		case gonp.SesCommon:
			lines = truncateContext(
				prefixLines("  ", c.lines),
				i == 0, i == len(chunks)-1, context,
			)
		}

		blocks = append(blocks, strings.Join(lines, "\n"))
	}

	return blocks
}

// Equal reports whether a and b have identical canonical forms.
func Equal(a, b any) bool {
	return string(canonical(a)) == string(canonical(b))
}

type chunk struct {
	typ   gonp.SesType
	lines []string
}

// lineChunks groups the shortest edit script for the two line sequences
// into runs of consecutive operations of the same kind.
func lineChunks(a, b []string) []chunk {
	d := gonp.New(a, b)
	d.Compose()

	var chunks []chunk

	for _, el := range d.Ses() {
		typ := el.GetType()

		if len(chunks) == 0 || chunks[len(chunks)-1].typ != typ {
			chunks = append(chunks, chunk{typ: typ})
		}

		c := &chunks[len(chunks)-1]
		c.lines = append(c.lines, el.GetElem())
	}

	return chunks
}

func truncateContext(lines []string, first, last bool, context int) []string {
	if context < 0 {
		return lines
	}

	switch {
	case first && last:
		// Equal inputs produce a single unchanged run with no change
		// to anchor the context on, so it is shown whole.
		return lines
	case first && len(lines) > context+1:
		out := make([]string, 0, context+1)
		out = append(out, ElisionMarker)

		return append(out, lines[len(lines)-context:]...)
	case last && len(lines) > context+1:
		out := make([]string, 0, context+1)
		out = append(out, lines[:context]...)

		return append(out, ElisionMarker)
	case !first && !last && len(lines) > 2*context:
		out := make([]string, 0, 2*context+1)
		out = append(out, lines[:context]...)
		out = append(out, ElisionMarker)

		return append(out, lines[len(lines)-context:]...)
	}

	return lines
}

func prefixLines(prefix string, lines []string) []string {
	out := make([]string, len(lines))

	for i, line := range lines {
		out[i] = prefix + line
	}

	return out
}

func canonicalLines(v any) []string {
	return strings.Split(string(canonical(v)), "\n")
}

// canonical serialises a value to its canonical textual form. Values that
// cannot be serialised are a programmer error, so this fails hard instead
// of producing a partial diff.
func canonical(v any) []byte {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("value cannot be serialised for diffing: %v", err))
	}

	return data
}
