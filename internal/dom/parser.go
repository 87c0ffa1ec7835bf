package dom

import (
	"strings"
)

// Parse builds a document tree from text without ever failing. Unclosed
// elements end where the text ends or where an enclosing end tag appears,
// and stray end tags are ignored, so a document in the middle of being typed
// still yields a navigable tree.
func Parse(text string) *Document {
	p := &parser{text: text}
	root := &Node{
		Kind:          KindDocument,
		Start:         0,
		End:           len(text),
		StartTagClose: Unset,
		EndTagOpen:    Unset,
		EndTagClose:   Unset,
	}
	p.stack = []*Node{root}
	p.run()
	return newDocument(text, root)
}

type parser struct {
	text  string
	pos   int
	stack []*Node
}

func (p *parser) top() *Node {
	return p.stack[len(p.stack)-1]
}

func (p *parser) appendChild(n *Node) {
	parent := p.top()
	n.Parent = parent
	parent.Children = append(parent.Children, n)
}

func (p *parser) run() {
	for p.pos < len(p.text) {
		if p.text[p.pos] != '<' {
			p.readText()
			continue
		}
		rest := p.text[p.pos:]
		switch {
		case strings.HasPrefix(rest, "<!--"):
			p.readDelimited(KindComment, "<!--", "-->")
		case strings.HasPrefix(rest, "<![CDATA["):
			p.readDelimited(KindCDATA, "<![CDATA[", "]]>")
		case strings.HasPrefix(rest, "<?"):
			p.readDelimited(KindProcInst, "<?", "?>")
		case strings.HasPrefix(rest, "<!"):
			p.readDelimited(KindComment, "<!", ">")
		case strings.HasPrefix(rest, "</"):
			p.readEndTag()
		default:
			if !p.readStartTag() {
				p.readText()
			}
		}
	}
	for len(p.stack) > 1 {
		n := p.top()
		n.End = len(p.text)
		p.stack = p.stack[:len(p.stack)-1]
	}
}

func (p *parser) readText() {
	start := p.pos
	from := start
	if p.text[start] == '<' {
		// a lone '<' that does not open a tag is kept as text
		from++
	}
	if end := strings.IndexByte(p.text[from:], '<'); end < 0 {
		p.pos = len(p.text)
	} else {
		p.pos = from + end
	}
	p.appendChild(&Node{
		Kind:          KindText,
		Data:          p.text[start:p.pos],
		Start:         start,
		End:           p.pos,
		StartTagClose: Unset,
		EndTagOpen:    Unset,
		EndTagClose:   Unset,
	})
}

func (p *parser) readDelimited(kind Kind, open, close string) {
	start := p.pos
	body := start + len(open)
	end := strings.Index(p.text[body:], close)
	var data string
	if end < 0 {
		data = p.text[body:]
		p.pos = len(p.text)
	} else {
		data = p.text[body : body+end]
		p.pos = body + end + len(close)
	}
	p.appendChild(&Node{
		Kind:          kind,
		Data:          data,
		Start:         start,
		End:           p.pos,
		StartTagClose: Unset,
		EndTagOpen:    Unset,
		EndTagClose:   Unset,
	})
}

func isNameByte(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '/', '>', '<', '=', '"', '\'':
		return false
	}
	return true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func (p *parser) readName(i int) (string, int) {
	start := i
	for i < len(p.text) && isNameByte(p.text[i]) {
		i++
	}
	return p.text[start:i], i
}

func localName(tag string) string {
	if idx := strings.LastIndexByte(tag, ':'); idx >= 0 {
		return tag[idx+1:]
	}
	return tag
}

// readStartTag returns false when the '<' does not start a tag name.
func (p *parser) readStartTag() bool {
	start := p.pos
	tag, i := p.readName(start + 1)
	if tag == "" {
		return false
	}
	n := &Node{
		Kind:          KindElement,
		TagName:       tag,
		Name:          localName(tag),
		Start:         start,
		StartTagClose: Unset,
		EndTagOpen:    Unset,
		EndTagClose:   Unset,
	}
	for i < len(p.text) {
		c := p.text[i]
		switch {
		case isSpace(c):
			i++
		case c == '>':
			n.StartTagClose = i
			p.pos = i + 1
			p.appendChild(n)
			p.stack = append(p.stack, n)
			return true
		case c == '/' && i+1 < len(p.text) && p.text[i+1] == '>':
			n.StartTagClose = i + 1
			n.SelfClosing = true
			n.End = i + 2
			p.pos = n.End
			p.appendChild(n)
			return true
		case c == '<':
			// unterminated start tag; the element has no content
			n.End = i
			p.pos = i
			p.appendChild(n)
			return true
		default:
			var attr Attr
			attr, i = p.readAttr(i)
			if attr.Name != "" {
				n.Attrs = append(n.Attrs, attr)
			}
		}
	}
	n.End = len(p.text)
	p.pos = len(p.text)
	p.appendChild(n)
	return true
}

func (p *parser) readAttr(i int) (Attr, int) {
	name, j := p.readName(i)
	if name == "" {
		return Attr{}, i + 1
	}
	for j < len(p.text) && isSpace(p.text[j]) {
		j++
	}
	if j >= len(p.text) || p.text[j] != '=' {
		return Attr{Name: name}, j
	}
	j++
	for j < len(p.text) && isSpace(p.text[j]) {
		j++
	}
	if j >= len(p.text) {
		return Attr{Name: name}, j
	}
	quote := p.text[j]
	if quote != '"' && quote != '\'' {
		value, k := p.readName(j)
		return Attr{Name: name, Value: value}, k
	}
	end := strings.IndexByte(p.text[j+1:], quote)
	if end < 0 {
		return Attr{Name: name, Value: p.text[j+1:]}, len(p.text)
	}
	return Attr{Name: name, Value: unescape(p.text[j+1 : j+1+end])}, j + 2 + end
}

func (p *parser) readEndTag() {
	start := p.pos
	tag, i := p.readName(start + 2)
	closeAt := Unset
	for i < len(p.text) {
		if p.text[i] == '>' {
			closeAt = i
			i++
			break
		}
		if p.text[i] == '<' {
			break
		}
		i++
	}
	p.pos = i

	match := -1
	for k := len(p.stack) - 1; k > 0; k-- {
		if p.stack[k].TagName == tag {
			match = k
			break
		}
	}
	if match < 0 {
		return
	}
	for k := len(p.stack) - 1; k > match; k-- {
		p.stack[k].End = start
	}
	n := p.stack[match]
	n.EndTagOpen = start
	n.EndTagClose = closeAt
	n.End = i
	p.stack = p.stack[:match]
}
