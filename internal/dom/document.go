// Package dom is an error-tolerant POM document tree. It keeps byte offsets
// for every tag boundary and converts them to editor positions, which count
// UTF-16 code units per line.
package dom

import (
	"sort"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"go.lsp.dev/protocol"
)

type Document struct {
	Text string
	Root *Node

	lineStarts []int
}

func newDocument(text string, root *Node) *Document {
	d := &Document{Text: text, Root: root}
	d.lineStarts = append(d.lineStarts, 0)
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			d.lineStarts = append(d.lineStarts, i+1)
		}
	}
	return d
}

// DocumentElement returns the first top-level element.
func (d *Document) DocumentElement() *Node {
	for _, c := range d.Root.Children {
		if c.Kind == KindElement {
			return c
		}
	}
	return nil
}

// NodeAt returns the deepest node whose span contains offset. A node's span
// is half open except that the end of the document belongs to the last node.
func (d *Document) NodeAt(offset int) *Node {
	n := d.Root
	for {
		var next *Node
		for _, c := range n.Children {
			if offset >= c.Start && (offset < c.End || (offset == c.End && c.End == len(d.Text))) {
				next = c
				break
			}
			// cursor right after the text of an element sits on the text
			if c.IsText() && offset == c.End {
				next = c
			}
		}
		if next == nil {
			return n
		}
		n = next
	}
}

// ElementAt returns the innermost element whose content contains offset.
func (d *Document) ElementAt(offset int) *Node {
	var found *Node
	var visit func(n *Node)
	visit = func(n *Node) {
		for _, c := range n.Children {
			if c.Kind != KindElement {
				continue
			}
			if c.ContainsContent(offset) {
				found = c
				visit(c)
				return
			}
		}
	}
	visit(d.Root)
	return found
}

// TextNodeAt returns the text node containing offset inside el, or nil.
func (d *Document) TextNodeAt(el *Node, offset int) *Node {
	if el == nil {
		return nil
	}
	for _, c := range el.Children {
		if c.IsText() && offset >= c.Start && offset <= c.End {
			return c
		}
	}
	return nil
}

func (d *Document) lineOf(offset int) int {
	return sort.Search(len(d.lineStarts), func(i int) bool {
		return d.lineStarts[i] > offset
	}) - 1
}

func (d *Document) clamp(offset int) int {
	if offset < 0 {
		return 0
	}
	if offset > len(d.Text) {
		return len(d.Text)
	}
	return offset
}

// PositionAt converts a byte offset into a line/UTF-16 column position.
func (d *Document) PositionAt(offset int) protocol.Position {
	offset = d.clamp(offset)
	line := d.lineOf(offset)
	start := d.lineStarts[line]
	return protocol.Position{
		Line:      uint32(line),
		Character: uint32(utf16Len(d.Text[start:offset])),
	}
}

// OffsetAt converts a position back to a byte offset, clamping to the line.
func (d *Document) OffsetAt(pos protocol.Position) int {
	line := int(pos.Line)
	if line >= len(d.lineStarts) {
		return len(d.Text)
	}
	start := d.lineStarts[line]
	end := len(d.Text)
	if line+1 < len(d.lineStarts) {
		end = d.lineStarts[line+1] - 1
	}
	units := 0
	i := start
	for i < end && units < int(pos.Character) {
		r, size := utf8.DecodeRuneInString(d.Text[i:])
		if r == '\r' && i+1 == end {
			break
		}
		units += len(utf16.Encode([]rune{r}))
		i += size
	}
	return i
}

func (d *Document) Range(start, end int) protocol.Range {
	return protocol.Range{Start: d.PositionAt(start), End: d.PositionAt(end)}
}

// LineIndent returns the leading whitespace of the line containing offset.
func (d *Document) LineIndent(offset int) string {
	start := d.lineStarts[d.lineOf(d.clamp(offset))]
	i := start
	for i < len(d.Text) && (d.Text[i] == ' ' || d.Text[i] == '\t') {
		i++
	}
	return d.Text[start:i]
}

// OnlyWhitespaceBefore reports whether the line holding offset is blank up
// to offset.
func (d *Document) OnlyWhitespaceBefore(offset int) bool {
	offset = d.clamp(offset)
	start := d.lineStarts[d.lineOf(offset)]
	return strings.TrimLeft(d.Text[start:offset], " \t") == ""
}

// LineDelimiter returns the delimiter the document already uses.
func (d *Document) LineDelimiter() string {
	if strings.Contains(d.Text, "\r\n") {
		return "\r\n"
	}
	return "\n"
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}
