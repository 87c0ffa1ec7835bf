// Package edit turns completion candidates into text edits. A candidate
// either replaces the value under the cursor, or inserts the elements that
// declare it, with indentation inferred from the surrounding document.
package edit

import (
	"strings"

	"go.lsp.dev/protocol"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/dom"
)

type Strategy int

const (
	// ElementValueAndSibling sets the value of the element under the cursor
	// and adds missing <groupId>/<version> siblings.
	ElementValueAndSibling Strategy = iota
	// ChildrenElements inserts groupId, artifactId and version as children of
	// the element under the cursor.
	ChildrenElements
	// NodeWithChildren inserts a whole declaration element with its
	// children.
	NodeWithChildren
)

func (s Strategy) String() string {
	switch s {
	case ElementValueAndSibling:
		return "element-value-and-sibling"
	case ChildrenElements:
		return "children-elements"
	case NodeWithChildren:
		return "node-with-children"
	default:
		return "unknown"
	}
}

// Insertion is a strategy plus, for NodeWithChildren, the name of the
// element to create.
type Insertion struct {
	Strategy Strategy
	Element  string
}

// InsertionFor picks the insertion for a candidate completed inside el.
func InsertionFor(el *dom.Node) Insertion {
	if el == nil {
		return Insertion{Strategy: ElementValueAndSibling}
	}
	switch el.Name {
	case "dependencies":
		return Insertion{Strategy: NodeWithChildren, Element: "dependency"}
	case "plugins":
		return Insertion{Strategy: NodeWithChildren, Element: "plugin"}
	case "dependency", "plugin", "parent":
		return Insertion{Strategy: ChildrenElements}
	}
	return Insertion{Strategy: ElementValueAndSibling}
}

// Request locates a completion: the document, the cursor and the element
// whose content holds the cursor.
type Request struct {
	Doc     *dom.Document
	Offset  int
	Element *dom.Node
}

// terminal reports whether the element holds a value rather than elements.
func (r Request) terminal() bool {
	return len(r.Element.ChildElements()) == 0 && !isContainer(r.Element.Name)
}

func isContainer(name string) bool {
	switch name {
	case "dependencies", "plugins", "dependency", "plugin", "parent", "project", "modules", "exclusions":
		return true
	}
	return false
}

// ReplaceRange is the span a candidate replaces: the whole content of a value
// element, otherwise the word typed before the cursor.
func (r Request) ReplaceRange() protocol.Range {
	start, end := r.replaceSpan()
	return r.Doc.Range(start, end)
}

func (r Request) replaceSpan() (int, int) {
	if r.Element == nil {
		return r.Offset, r.Offset
	}
	if r.terminal() && r.Element.HasEndTag() {
		return r.Element.ContentStart(), r.Element.ContentEnd()
	}
	start := r.Offset
	floor := r.Element.ContentStart()
	for start > floor {
		c := r.Doc.Text[start-1]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '>' || c == '<' {
			break
		}
		start--
	}
	return start, r.Offset
}

// LineIndent is the leading whitespace of the cursor's line.
func (r Request) LineIndent() string {
	return r.Doc.LineIndent(r.Offset)
}

// OneLevelIndent approximates one indentation unit by dividing the cursor
// line's indentation by the number of elements it is nested in.
func (r Request) OneLevelIndent() string {
	depth := r.Element.Depth()
	if r.Doc.PositionAt(r.Offset).Line == r.Doc.PositionAt(r.Element.Start).Line {
		// the cursor line holds the element itself, not its children
		depth--
	}
	return OneLevelIndent(r.LineIndent(), depth)
}

// OneLevelIndent divides indent evenly into depth units. It falls back to
// two spaces, or a tab for tab-indented text, when nothing can be inferred.
func OneLevelIndent(indent string, depth int) string {
	if depth <= 0 || len(indent) < depth {
		if strings.Contains(indent, "\t") {
			return "\t"
		}
		return "  "
	}
	return indent[:len(indent)/depth]
}

// Value builds a candidate that replaces the current value with label.
func Value(r Request, label, documentation string, kind protocol.CompletionItemKind) protocol.CompletionItem {
	item := protocol.CompletionItem{
		Label:            label,
		SortText:         label,
		FilterText:       label,
		Kind:             kind,
		InsertTextFormat: protocol.InsertTextFormatPlainText,
		TextEdit: &protocol.TextEdit{
			Range:   r.ReplaceRange(),
			NewText: label,
		},
	}
	if documentation != "" {
		item.Documentation = documentation
	}
	return item
}

// Closing builds a fixed-value candidate that also closes the element when
// the user has not typed its end tag yet.
func Closing(r Request, label, documentation string) protocol.CompletionItem {
	item := Value(r, label, documentation, protocol.CompletionItemKindProperty)
	if r.Element != nil && !r.Element.HasEndTag() {
		text := label + "</" + r.Element.TagName + ">"
		item.FilterText = text
		item.TextEdit = &protocol.TextEdit{
			Range:   r.Doc.Range(r.Element.ContentStart(), r.Offset),
			NewText: text,
		}
	}
	return item
}

// GAV builds the candidate for an artifact according to ins.
func GAV(r Request, ins Insertion, info coordinate.ArtifactInfo) protocol.CompletionItem {
	if ins.Strategy == ElementValueAndSibling {
		return elementValueAndSibling(r, info)
	}
	return declaration(r, ins, info)
}

func elementValueAndSibling(r Request, info coordinate.ArtifactInfo) protocol.CompletionItem {
	item := Value(r, info.ArtifactID, info.Description, protocol.CompletionItemKindValue)
	item.Detail = coordinate.Coordinate{GroupArtifact: info.GroupArtifact, Version: info.Version}.String()
	decl := r.Element.ParentElement()
	if decl == nil {
		return item
	}
	delim := r.Doc.LineDelimiter()
	// siblings sit one level below the declaration, each on its own line
	outer := r.Doc.LineIndent(decl.Start)
	indent := outer + OneLevelIndent(outer, decl.Depth()-1)
	ownLine := r.Doc.OnlyWhitespaceBefore(r.Element.Start)
	if ownLine {
		indent = r.Doc.LineIndent(r.Element.Start)
	}
	var extra []protocol.TextEdit
	if !decl.HasChild("groupId") && info.GroupID != "" && decl.StartTagClose != dom.Unset {
		at := r.Doc.PositionAt(decl.ContentStart())
		text := delim + indent + element("groupId", info.GroupID)
		if !ownLine {
			text += delim + indent
		}
		extra = append(extra, protocol.TextEdit{
			Range:   protocol.Range{Start: at, End: at},
			NewText: text,
		})
	}
	if !decl.HasChild("version") && info.Version != "" {
		at := r.Doc.PositionAt(r.Element.End)
		text := delim + indent + element("version", info.Version)
		if !ownLine && decl.HasEndTag() && r.Element.End <= decl.EndTagOpen && !strings.ContainsAny(r.Doc.Text[r.Element.End:decl.EndTagOpen], "\r\n") {
			text += delim + outer
		}
		extra = append(extra, protocol.TextEdit{
			Range:   protocol.Range{Start: at, End: at},
			NewText: text,
		})
	}
	if len(extra) > 0 {
		item.AdditionalTextEdits = extra
	}
	return item
}

func declaration(r Request, ins Insertion, info coordinate.ArtifactInfo) protocol.CompletionItem {
	delim := r.Doc.LineDelimiter()
	unit := r.OneLevelIndent()

	// indent is where the first inserted line starts. When the cursor shares
	// its line with other markup the insertion opens a fresh line.
	indent := r.LineIndent()
	var prefix, suffix string
	if start, _ := r.replaceSpan(); !r.Doc.OnlyWhitespaceBefore(start) {
		outer := r.Doc.LineIndent(r.Element.Start)
		indent = outer + unit
		prefix = delim + indent
		suffix = delim + outer
	}

	childIndent := indent
	var b strings.Builder
	b.WriteString(prefix)
	if ins.Strategy == NodeWithChildren {
		childIndent = indent + unit
		b.WriteString("<" + ins.Element + ">" + delim + childIndent)
	}
	b.WriteString(element("groupId", info.GroupID))
	b.WriteString(delim + childIndent)
	b.WriteString(element("artifactId", info.ArtifactID))
	if info.Version != "" {
		b.WriteString(delim + childIndent)
		b.WriteString(element("version", info.Version))
	}
	if ins.Strategy == NodeWithChildren {
		b.WriteString(delim + indent + "</" + ins.Element + ">")
	}
	b.WriteString(suffix)

	label := info.ArtifactID + " - " + info.GroupID + ":" + info.ArtifactID
	if info.Version != "" {
		label += ":" + info.Version
	}
	item := protocol.CompletionItem{
		Label:            label,
		Kind:             protocol.CompletionItemKindStruct,
		FilterText:       label,
		InsertTextFormat: protocol.InsertTextFormatPlainText,
		TextEdit: &protocol.TextEdit{
			Range:   r.ReplaceRange(),
			NewText: b.String(),
		},
	}
	if info.Description != "" {
		item.Documentation = info.Description
	}
	return item
}

func element(name, value string) string {
	return "<" + name + ">" + value + "</" + name + ">"
}
