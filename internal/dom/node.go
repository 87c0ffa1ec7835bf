package dom

import (
	"strings"
)

type Kind int

const (
	KindDocument Kind = iota
	KindElement
	KindText
	KindComment
	KindCDATA
	KindProcInst
)

// Unset marks an offset that does not exist in the text, such as the end tag
// of an element the user has not closed yet.
const Unset = -1

type Attr struct {
	Name  string
	Value string
}

// Node is one node of a POM document. Offsets are byte offsets into the
// document text.
type Node struct {
	Kind     Kind
	Name     string
	TagName  string
	Data     string
	Attrs    []Attr
	Parent   *Node
	Children []*Node

	Start int
	End   int

	StartTagClose int
	EndTagOpen    int
	EndTagClose   int
	SelfClosing   bool
}

func (n *Node) IsElement() bool {
	return n != nil && n.Kind == KindElement
}

func (n *Node) IsText() bool {
	return n != nil && (n.Kind == KindText || n.Kind == KindCDATA)
}

// ParentElement returns the closest enclosing element, or nil at the top.
func (n *Node) ParentElement() *Node {
	if n == nil {
		return nil
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Kind == KindElement {
			return p
		}
	}
	return nil
}

func (n *Node) ChildElements() []*Node {
	if n == nil {
		return nil
	}
	out := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		if c.Kind == KindElement {
			out = append(out, c)
		}
	}
	return out
}

// Child returns the first child element with the given local name.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Kind == KindElement && c.Name == name {
			return c
		}
	}
	return nil
}

func (n *Node) HasChild(name string) bool {
	return n.Child(name) != nil
}

// ChildText returns the trimmed text of the named child element. ok is false
// when the child is missing or has no text.
func (n *Node) ChildText(name string) (string, bool) {
	c := n.Child(name)
	if c == nil {
		return "", false
	}
	text := strings.TrimSpace(c.TextContent())
	return text, text != ""
}

// TextContent concatenates the text and CDATA children with entities
// decoded.
func (n *Node) TextContent() string {
	if n == nil {
		return ""
	}
	if n.IsText() {
		if n.Kind == KindCDATA {
			return n.Data
		}
		return unescape(n.Data)
	}
	var b strings.Builder
	for _, c := range n.Children {
		if c.IsText() {
			b.WriteString(c.TextContent())
		}
	}
	return b.String()
}

// Depth counts this element and its element ancestors.
func (n *Node) Depth() int {
	depth := 0
	for e := n; e != nil; e = e.ParentElement() {
		if e.Kind == KindElement {
			depth++
		}
	}
	return depth
}

func (n *Node) HasEndTag() bool {
	return n.EndTagOpen != Unset
}

// ContentStart is the offset just after the start tag.
func (n *Node) ContentStart() int {
	if n.StartTagClose == Unset {
		return n.End
	}
	return n.StartTagClose + 1
}

// ContentEnd is the offset of the end tag, or the end of the parsed element
// when it is not closed.
func (n *Node) ContentEnd() int {
	if n.EndTagOpen != Unset {
		return n.EndTagOpen
	}
	if n.SelfClosing {
		return n.ContentStart()
	}
	return n.End
}

// ContainsContent reports whether offset lies between the start and end tag.
func (n *Node) ContainsContent(offset int) bool {
	if n.Kind != KindElement || n.SelfClosing || n.StartTagClose == Unset {
		return false
	}
	return offset > n.StartTagClose && offset <= n.ContentEnd()
}

// Ancestor returns the closest element (self included) with the given name.
func (n *Node) Ancestor(name string) *Node {
	for e := n; e != nil; e = e.ParentElement() {
		if e.Kind == KindElement && e.Name == name {
			return e
		}
	}
	return nil
}

// Walk visits the subtree depth first, pre-order.
func (n *Node) Walk(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

var entityReplacer = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&amp;", "&",
	"&quot;", `"`,
	"&apos;", "'",
)

func unescape(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return entityReplacer.Replace(s)
}
