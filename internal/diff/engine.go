package diff

import (
	"fmt"
	"strings"
)

// Kind classifies a line within a hunk.
type Kind int

const (
	KindContext Kind = iota
	KindAdded
	KindRemoved
)

// Line is one row of a rendered hunk.
type Line struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

// Hunk is a contiguous run of changed lines plus surrounding context.
// Start positions are one-based; a side absent from the hunk has start and
// count zero.
type Hunk struct {
	OldStart int    `json:"old_start"`
	OldCount int    `json:"old_count"`
	NewStart int    `json:"new_start"`
	NewCount int    `json:"new_count"`
	Lines    []Line `json:"lines"`
}

// Result is a rendered comparison of two file versions.
type Result struct {
	Hunks []Hunk `json:"hunks"`
}

// Changed reports whether the comparison found any difference.
func (r *Result) Changed() bool {
	return len(r.Hunks) > 0
}

// Format renders the hunks in unified style.
func (r *Result) Format() string {
	var b strings.Builder
	for _, h := range r.Hunks {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, line := range h.Lines {
			switch line.Kind {
			case KindAdded:
				b.WriteByte('+')
			case KindRemoved:
				b.WriteByte('-')
			default:
				b.WriteByte(' ')
			}
			b.WriteString(line.Text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Engine renders line diffs for display. Counting for summaries is the job
// of Count; the engine produces an exact alignment.
type Engine struct {
	context int
}

// NewEngine returns an engine emitting contextLines of context around each
// hunk.
func NewEngine(contextLines int) *Engine {
	if contextLines < 0 {
		contextLines = 0
	}
	return &Engine{context: contextLines}
}

// Compare aligns original against current and groups the differences into
// hunks.
func (e *Engine) Compare(original, current string) *Result {
	ops := align(Lines(original), Lines(current))
	return &Result{Hunks: e.buildHunks(ops)}
}

type editOp struct {
	kind   Kind
	text   string
	oldIdx int
	newIdx int
}

// align walks a longest-common-subsequence table to produce the edit
// script from old to new.
func align(oldLines, newLines []string) []editOp {
	m, n := len(oldLines), len(newLines)
	table := make([][]int, m+1)
	for i := range table {
		table[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			switch {
			case oldLines[i] == newLines[j]:
				table[i][j] = table[i+1][j+1] + 1
			case table[i+1][j] >= table[i][j+1]:
				table[i][j] = table[i+1][j]
			default:
				table[i][j] = table[i][j+1]
			}
		}
	}

	ops := make([]editOp, 0, m+n)
	i, j := 0, 0
	for i < m && j < n {
		switch {
		case oldLines[i] == newLines[j]:
			ops = append(ops, editOp{kind: KindContext, text: oldLines[i], oldIdx: i, newIdx: j})
			i++
			j++
		case table[i+1][j] >= table[i][j+1]:
			ops = append(ops, editOp{kind: KindRemoved, text: oldLines[i], oldIdx: i, newIdx: -1})
			i++
		default:
			ops = append(ops, editOp{kind: KindAdded, text: newLines[j], oldIdx: -1, newIdx: j})
			j++
		}
	}
	for ; i < m; i++ {
		ops = append(ops, editOp{kind: KindRemoved, text: oldLines[i], oldIdx: i, newIdx: -1})
	}
	for ; j < n; j++ {
		ops = append(ops, editOp{kind: KindAdded, text: newLines[j], oldIdx: -1, newIdx: j})
	}
	return ops
}

// buildHunks groups changed ops into hunks, merging neighbours whose
// context windows would overlap.
func (e *Engine) buildHunks(ops []editOp) []Hunk {
	var hunks []Hunk
	idx := 0
	for idx < len(ops) {
		if ops[idx].kind == KindContext {
			idx++
			continue
		}

		start := idx
		end := idx + 1
		gap := 0
		for j := idx + 1; j < len(ops); j++ {
			if ops[j].kind == KindContext {
				gap++
				if gap > 2*e.context {
					break
				}
				continue
			}
			end = j + 1
			gap = 0
		}

		lo := start - e.context
		if lo < 0 {
			lo = 0
		}
		hi := end + e.context
		if hi > len(ops) {
			hi = len(ops)
		}

		hunk := Hunk{Lines: make([]Line, 0, hi-lo)}
		for k := lo; k < hi; k++ {
			o := ops[k]
			hunk.Lines = append(hunk.Lines, Line{Kind: o.kind, Text: o.text})
			if o.oldIdx >= 0 {
				if hunk.OldCount == 0 {
					hunk.OldStart = o.oldIdx + 1
				}
				hunk.OldCount++
			}
			if o.newIdx >= 0 {
				if hunk.NewCount == 0 {
					hunk.NewStart = o.newIdx + 1
				}
				hunk.NewCount++
			}
		}
		hunks = append(hunks, hunk)
		idx = end
	}
	return hunks
}
