package completion

import (
	"sort"

	"go.lsp.dev/protocol"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/dom"
)

const unknownValue = "unknown"

var builtinProperties = []string{
	"basedir",
	"project.basedir",
	"project.version",
	"project.groupId",
	"project.artifactId",
	"project.name",
	"project.build.directory",
	"project.build.outputDirectory",
}

// propertyStart scans back from the cursor for the '$' opening a property
// reference inside text. It gives up at a '}' or at the start of the text.
func propertyStart(doc *dom.Document, text *dom.Node, offset int) (int, bool) {
	for i := offset - 1; i >= text.Start && i >= 0; i-- {
		switch doc.Text[i] {
		case '$':
			return i, true
		case '}':
			return 0, false
		}
	}
	return 0, false
}

func properties(p *position, text *dom.Node) []protocol.CompletionItem {
	start, ok := propertyStart(p.Doc, text, p.Offset)
	if !ok {
		return nil
	}
	values := make(map[string]string, len(builtinProperties))
	for _, name := range builtinProperties {
		values[name] = unknownValue
	}
	if p.Model != nil {
		for name := range p.Model.Properties {
			values[name] = unknownValue
		}
		for name := range values {
			if v, ok := p.Model.Property(name); ok && v != "" {
				values[name] = v
			}
		}
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	rng := p.Doc.Range(start, p.Offset)
	items := make([]protocol.CompletionItem, 0, len(names))
	for _, name := range names {
		label := "${" + name + "}"
		items = append(items, protocol.CompletionItem{
			Label:         label,
			Kind:          protocol.CompletionItemKindProperty,
			Documentation: "Default Value: " + values[name],
			SortText:      label,
			FilterText:    label,
			InsertText:    label,
			TextEdit:      &protocol.TextEdit{Range: rng, NewText: label},
		})
	}
	return items
}

const minimalPOMContent = `<project xmlns="http://maven.apache.org/POM/4.0.0" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
  xsi:schemaLocation="http://maven.apache.org/POM/4.0.0 https://maven.apache.org/xsd/maven-4.0.0.xsd">
  <modelVersion>4.0.0</modelVersion>
  <artifactId>$0</artifactId>
</project>
`

// minimalPOM offers a skeleton for an empty document.
func minimalPOM(doc *dom.Document) protocol.CompletionItem {
	return protocol.CompletionItem{
		Label:            "minimal pom content",
		Kind:             protocol.CompletionItemKindSnippet,
		InsertTextFormat: protocol.InsertTextFormatSnippet,
		SortText:         "0",
		TextEdit: &protocol.TextEdit{
			Range:   doc.Range(0, len(doc.Text)),
			NewText: minimalPOMContent,
		},
	}
}
