package edit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/dom"
)

var core = coordinate.ArtifactInfo{
	GroupArtifact: coordinate.GroupArtifact{GroupID: "org.x", ArtifactID: "core"},
	Version:       "1.2",
}

// request places the cursor after the first occurrence of marker.
func request(t *testing.T, text, marker string) Request {
	t.Helper()
	idx := strings.Index(text, marker)
	require.GreaterOrEqual(t, idx, 0, "marker %q", marker)
	doc := dom.Parse(text)
	offset := idx + len(marker)
	el := doc.ElementAt(offset)
	require.NotNil(t, el)
	return Request{Doc: doc, Offset: offset, Element: el}
}

func pos(line, char uint32) protocol.Position {
	return protocol.Position{Line: line, Character: char}
}

func TestElementValueSkipsPresentGroupID(t *testing.T) {
	text := "<project>\n  <dependencies>\n    <dependency>\n      <groupId>org.x</groupId>\n      <artifactId></artifactId>\n    </dependency>\n  </dependencies>\n</project>"
	r := request(t, text, "<artifactId>")
	require.Equal(t, "artifactId", r.Element.Name)

	item := GAV(r, InsertionFor(r.Element), core)
	assert.Equal(t, "core", item.Label)
	assert.Equal(t, protocol.CompletionItemKindValue, item.Kind)
	assert.Equal(t, "org.x:core:1.2", item.Detail)
	require.NotNil(t, item.TextEdit)
	assert.Equal(t, "core", item.TextEdit.NewText)
	assert.Equal(t, protocol.Range{Start: pos(4, 18), End: pos(4, 18)}, item.TextEdit.Range)

	require.Len(t, item.AdditionalTextEdits, 1)
	assert.Equal(t, "\n      <version>1.2</version>", item.AdditionalTextEdits[0].NewText)
	assert.Equal(t, pos(4, 31), item.AdditionalTextEdits[0].Range.Start)
	assert.Equal(t, pos(4, 31), item.AdditionalTextEdits[0].Range.End)
}

func TestElementValueAddsGroupIDAndReplacesValue(t *testing.T) {
	text := "<project>\n  <dependencies>\n    <dependency>\n      <artifactId>co</artifactId>\n      <version>1.0</version>\n    </dependency>\n  </dependencies>\n</project>"
	r := request(t, text, "<artifactId>c")

	item := GAV(r, Insertion{Strategy: ElementValueAndSibling}, core)
	assert.Equal(t, protocol.Range{Start: pos(3, 18), End: pos(3, 20)}, item.TextEdit.Range)
	require.Len(t, item.AdditionalTextEdits, 1)
	assert.Equal(t, "\n      <groupId>org.x</groupId>", item.AdditionalTextEdits[0].NewText)
	assert.Equal(t, pos(2, 16), item.AdditionalTextEdits[0].Range.Start)
}

func TestElementValueOnOneLineDeclaration(t *testing.T) {
	text := "<project>\n  <dependencies>\n    <dependency><artifactId>co</artifactId></dependency>\n  </dependencies>\n</project>"
	r := request(t, text, "<artifactId>c")

	item := GAV(r, Insertion{Strategy: ElementValueAndSibling}, core)
	require.Len(t, item.AdditionalTextEdits, 2)
	assert.Equal(t, "\n      <groupId>org.x</groupId>\n      ", item.AdditionalTextEdits[0].NewText)
	assert.Equal(t, pos(2, 16), item.AdditionalTextEdits[0].Range.Start)
	assert.Equal(t, "\n      <version>1.2</version>\n    ", item.AdditionalTextEdits[1].NewText)
	assert.Equal(t, pos(2, 43), item.AdditionalTextEdits[1].Range.Start)
}

func TestNodeWithChildren(t *testing.T) {
	text := "<project>\n  <dependencies>\n    \n  </dependencies>\n</project>"
	r := request(t, text, "<dependencies>\n    ")
	require.Equal(t, "dependencies", r.Element.Name)

	ins := InsertionFor(r.Element)
	assert.Equal(t, Insertion{Strategy: NodeWithChildren, Element: "dependency"}, ins)

	item := GAV(r, ins, core)
	assert.Equal(t, "core - org.x:core:1.2", item.Label)
	assert.Equal(t, protocol.CompletionItemKindStruct, item.Kind)
	assert.Equal(t, protocol.Range{Start: pos(2, 4), End: pos(2, 4)}, item.TextEdit.Range)
	assert.Equal(t, "<dependency>\n"+
		"      <groupId>org.x</groupId>\n"+
		"      <artifactId>core</artifactId>\n"+
		"      <version>1.2</version>\n"+
		"    </dependency>", item.TextEdit.NewText)
	assert.Empty(t, item.AdditionalTextEdits)
}

func TestChildrenElementsOnContainerLine(t *testing.T) {
	text := "<project>\n  <dependencies>\n    <dependency></dependency>\n  </dependencies>\n</project>"
	r := request(t, text, "<dependency>")
	require.Equal(t, "dependency", r.Element.Name)

	item := GAV(r, InsertionFor(r.Element), core)
	assert.Equal(t, "\n"+
		"      <groupId>org.x</groupId>\n"+
		"      <artifactId>core</artifactId>\n"+
		"      <version>1.2</version>\n"+
		"    ", item.TextEdit.NewText)
}

func TestChildrenElementsOnBlankLine(t *testing.T) {
	text := "<project>\n\t<parent>\n\t\tjun\n\t</parent>\n</project>"
	r := request(t, text, "jun")
	require.Equal(t, "parent", r.Element.Name)

	item := GAV(r, Insertion{Strategy: ChildrenElements}, coordinate.ArtifactInfo{
		GroupArtifact: coordinate.GroupArtifact{GroupID: "junit", ArtifactID: "junit"},
	})
	assert.Equal(t, "junit - junit:junit", item.Label)
	assert.Equal(t, protocol.Range{Start: pos(2, 2), End: pos(2, 5)}, item.TextEdit.Range)
	assert.Equal(t, "<groupId>junit</groupId>\n\t\t<artifactId>junit</artifactId>", item.TextEdit.NewText)
}

func TestClosingCompletesUnclosedElement(t *testing.T) {
	text := "<dependency>\n  <scope>te"
	r := request(t, text, "<scope>te")
	item := Closing(r, "test", "Only for tests.")
	assert.Equal(t, "test</scope>", item.TextEdit.NewText)
	assert.Equal(t, protocol.Range{Start: pos(1, 9), End: pos(1, 11)}, item.TextEdit.Range)
	assert.Equal(t, "Only for tests.", item.Documentation)

	closed := request(t, "<dependency>\n  <scope>te</scope>\n</dependency>", "<scope>t")
	item = Closing(closed, "test", "")
	assert.Equal(t, "test", item.TextEdit.NewText)
	assert.Equal(t, protocol.Range{Start: pos(1, 9), End: pos(1, 11)}, item.TextEdit.Range)
	assert.Nil(t, item.Documentation)
}

func TestOneLevelIndent(t *testing.T) {
	tests := []struct {
		indent string
		depth  int
		want   string
	}{
		{"    ", 2, "  "},
		{"      ", 3, "  "},
		{"\t\t", 2, "\t"},
		{"", 3, "  "},
		{"\t", 0, "\t"},
		{"  ", 4, "  "},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OneLevelIndent(tt.indent, tt.depth), "%q/%d", tt.indent, tt.depth)
	}
}

func TestInsertionFor(t *testing.T) {
	doc := dom.Parse("<project><plugins><plugin><version/></plugin></plugins></project>")
	plugins := doc.DocumentElement().Child("plugins")
	assert.Equal(t, Insertion{Strategy: NodeWithChildren, Element: "plugin"}, InsertionFor(plugins))
	assert.Equal(t, Insertion{Strategy: ChildrenElements}, InsertionFor(plugins.Child("plugin")))
	assert.Equal(t, Insertion{Strategy: ElementValueAndSibling}, InsertionFor(plugins.Child("plugin").Child("version")))
	assert.Equal(t, Insertion{Strategy: ElementValueAndSibling}, InsertionFor(nil))
	assert.Equal(t, "node-with-children", NodeWithChildren.String())
}
