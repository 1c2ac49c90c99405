package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attribute names used by the portable markup representation. The collapsed
// flag has a legacy spelling from earlier documents: data-is-editing carried
// the inverse meaning (editing = expanded). Parsing accepts either name; the
// current name wins when both are present.
const (
	attrBeatID           = "data-beat-id"
	attrPrompt           = "data-prompt"
	attrGeneratedContent = "data-generated-content"
	attrIsGenerating     = "data-is-generating"
	attrIsCollapsed      = "data-is-collapsed"
	attrLegacyIsEditing  = "data-is-editing"
	attrCreatedAt        = "data-created-at"
	attrUpdatedAt        = "data-updated-at"
	attrWordCount        = "data-word-count"
	attrBeatType         = "data-beat-type"
	attrModel            = "data-model"
	attrCurrentVersion   = "data-current-version-id"
	attrHasHistory       = "data-has-history"
	attrBeatEnd          = "data-beat-end"
	attrImageID          = "data-image-id"
)

// ToMarkup serializes a document to its portable HTML-like representation.
func ToMarkup(doc *Node) string {
	var b strings.Builder
	for _, child := range doc.Children {
		writeNode(&b, child)
	}
	return b.String()
}

func writeNode(b *strings.Builder, n *Node) {
	switch n.Type {
	case TypeParagraph:
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(n.Text))
		b.WriteString("</p>")
	case TypeBulletList:
		b.WriteString("<ul>")
		for _, item := range n.Children {
			b.WriteString("<li>")
			b.WriteString(html.EscapeString(item.Text))
			b.WriteString("</li>")
		}
		b.WriteString("</ul>")
	case TypeImage:
		attrs := n.Attrs.(*ImageAttrs)
		b.WriteString("<img")
		writeAttr(b, attrImageID, attrs.ImageID)
		writeAttr(b, "src", attrs.Src)
		writeAttr(b, "alt", attrs.Alt)
		b.WriteString(">")
	case TypeBeat:
		writeBeat(b, n.Attrs.(*BeatAttrs))
	case TypeBeatEnd:
		attrs := n.Attrs.(*BeatEndAttrs)
		b.WriteString("<div")
		writeAttr(b, attrBeatEnd, attrs.BeatID)
		b.WriteString(` style="display:none"></div>`)
	}
}

func writeBeat(b *strings.Builder, a *BeatAttrs) {
	b.WriteString(`<div class="beat"`)
	writeAttr(b, attrBeatID, a.ID)
	writeAttr(b, attrPrompt, a.Prompt)
	writeAttr(b, attrGeneratedContent, a.GeneratedContent)
	writeAttr(b, attrIsGenerating, strconv.FormatBool(a.IsGenerating))
	writeAttr(b, attrIsCollapsed, strconv.FormatBool(a.IsCollapsed))
	if !a.CreatedAt.IsZero() {
		writeAttr(b, attrCreatedAt, a.CreatedAt.Format(time.RFC3339Nano))
	}
	if !a.UpdatedAt.IsZero() {
		writeAttr(b, attrUpdatedAt, a.UpdatedAt.Format(time.RFC3339Nano))
	}
	writeAttr(b, attrWordCount, strconv.Itoa(a.WordCount))
	writeAttr(b, attrBeatType, string(a.BeatType))
	writeAttr(b, attrModel, a.Model)
	if a.CurrentVersionID != "" {
		writeAttr(b, attrCurrentVersion, a.CurrentVersionID)
	}
	writeAttr(b, attrHasHistory, strconv.FormatBool(a.HasHistory))
	b.WriteString("></div>")
}

func writeAttr(b *strings.Builder, name, value string) {
	b.WriteString(" ")
	b.WriteString(name)
	b.WriteString(`="`)
	b.WriteString(html.EscapeString(value))
	b.WriteString(`"`)
}

// FromMarkup parses the portable markup back into a document. Unknown
// elements are skipped; legacy attribute spellings are normalized.
func FromMarkup(markup string) (*Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	var blocks []*Node
	for _, n := range nodes {
		if block := parseBlock(n); block != nil {
			blocks = append(blocks, block)
		}
	}
	return NewDoc(blocks...), nil
}

func parseBlock(n *html.Node) *Node {
	if n.Type != html.ElementNode {
		return nil
	}
	switch n.DataAtom {
	case atom.P:
		return NewParagraph(innerText(n))
	case atom.Ul, atom.Ol:
		var items []*Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Li {
				items = append(items, NewListItem(innerText(c)))
			}
		}
		return NewBulletList(items...)
	case atom.Img:
		return NewImage(&ImageAttrs{
			ImageID: getAttr(n, attrImageID),
			Src:     getAttr(n, "src"),
			Alt:     getAttr(n, "alt"),
		})
	case atom.Div:
		if id, ok := lookupAttr(n, attrBeatEnd); ok {
			return NewBeatEnd(id)
		}
		if _, ok := lookupAttr(n, attrBeatID); ok {
			return NewBeat(parseBeatAttrs(n))
		}
	}
	return nil
}

func parseBeatAttrs(n *html.Node) *BeatAttrs {
	a := &BeatAttrs{
		ID:               getAttr(n, attrBeatID),
		Prompt:           getAttr(n, attrPrompt),
		GeneratedContent: getAttr(n, attrGeneratedContent),
		IsGenerating:     getAttr(n, attrIsGenerating) == "true",
		IsCollapsed:      parseCollapsed(n),
		WordCount:        parseInt(getAttr(n, attrWordCount)),
		BeatType:         BeatType(getAttr(n, attrBeatType)),
		Model:            getAttr(n, attrModel),
		CurrentVersionID: getAttr(n, attrCurrentVersion),
		HasHistory:       getAttr(n, attrHasHistory) == "true",
	}
	if a.BeatType == "" {
		a.BeatType = BeatTypeStory
	}
	a.CreatedAt = parseTime(getAttr(n, attrCreatedAt))
	a.UpdatedAt = parseTime(getAttr(n, attrUpdatedAt))
	return a
}

// parseCollapsed normalizes the collapsed flag with explicit precedence:
// current attribute name, then the inverted legacy name, then false.
func parseCollapsed(n *html.Node) bool {
	if v, ok := lookupAttr(n, attrIsCollapsed); ok {
		return v == "true"
	}
	if v, ok := lookupAttr(n, attrLegacyIsEditing); ok {
		return v != "true"
	}
	return false
}

func lookupAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func getAttr(n *html.Node, name string) string {
	v, _ := lookupAttr(n, name)
	return v
}

func parseInt(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		for g := c.FirstChild; g != nil; g = g.NextSibling {
			walk(g)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return b.String()
}
