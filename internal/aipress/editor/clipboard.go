package editor

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
	policy "github.com/aisa-it/aipress/internal/aipress/redactor-policy"
)

// ParseHTML разбирает HTML из буфера обмена во фрагмент документа. HTML предварительно
// очищается политикой UGC, неизвестные теги разворачиваются в своё содержимое.
func ParseHTML(schema *edtypes.Schema, src string) (edtypes.Slice, error) {
	rootNode, err := html.Parse(strings.NewReader(policy.UgcPolicy.Sanitize(src)))
	if err != nil {
		return edtypes.Slice{}, err
	}
	blocks := parseBlocks(schema, getBody(rootNode))
	return openSlice(blocks), nil
}

// TextSlice фрагмент из простого текста: параграф на каждую строку.
func TextSlice(schema *edtypes.Schema, text string) edtypes.Slice {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var blocks []*edtypes.Node
	for line := range strings.SplitSeq(text, "\n") {
		var content []*edtypes.Node
		if line != "" {
			content = append(content, schema.Text(line))
		}
		blocks = append(blocks, schema.MustNode(edtypes.ParagraphType, nil, content...))
	}
	return openSlice(blocks)
}

// openSlice открывает крайние текстовые блоки, чтобы они слились с параграфом в точке вставки.
func openSlice(blocks []*edtypes.Node) edtypes.Slice {
	slice := edtypes.Slice{Content: blocks}
	if len(blocks) == 0 {
		return slice
	}
	if blocks[0].Type == edtypes.ParagraphType {
		slice.OpenStart = 1
	}
	if blocks[len(blocks)-1].Type == edtypes.ParagraphType {
		slice.OpenEnd = 1
	}
	return slice
}

func getBody(root *html.Node) *html.Node {
	if root.Type == html.ElementNode && root.Data == "body" {
		return root
	}
	for el := root.FirstChild; el != nil; el = el.NextSibling {
		if body := getBody(el); body != nil {
			return body
		}
	}
	if root.Parent == nil {
		return root
	}
	return nil
}

func parseBlocks(schema *edtypes.Schema, root *html.Node) []*edtypes.Node {
	var blocks, inline []*edtypes.Node
	flush := func() {
		if len(inline) > 0 {
			blocks = append(blocks, schema.MustNode(edtypes.ParagraphType, nil, inline...))
			inline = nil
		}
	}

	for el := root.FirstChild; el != nil; el = el.NextSibling {
		if el.Type == html.TextNode {
			if strings.TrimSpace(el.Data) != "" {
				parseInline(schema, el, nil, &inline)
			}
			continue
		}
		if el.Type != html.ElementNode {
			continue
		}

		switch el.Data {
		case "p":
			flush()
			var content []*edtypes.Node
			parseInlineChildren(schema, el, nil, &content)
			blocks = append(blocks, schema.MustNode(edtypes.ParagraphType, nil, content...))
		case "h1", "h2", "h3", "h4", "h5", "h6":
			flush()
			var content []*edtypes.Node
			parseInlineChildren(schema, el, nil, &content)
			level, _ := strconv.Atoi(el.Data[1:])
			blocks = append(blocks, schema.MustNode(edtypes.HeadingType, edtypes.Attrs{"level": level}, content...))
		case "blockquote":
			flush()
			blocks = append(blocks, schema.MustNode(edtypes.BlockquoteType, nil, nonEmpty(schema, parseBlocks(schema, el))...))
		case "ul", "ol":
			flush()
			if list := parseList(schema, el); list != nil {
				blocks = append(blocks, list)
			}
		case "pre":
			flush()
			var content []*edtypes.Node
			if text := textContent(el); text != "" {
				content = append(content, schema.Text(text))
			}
			blocks = append(blocks, schema.MustNode(edtypes.CodeBlockType, nil, content...))
		case "hr":
			flush()
			blocks = append(blocks, schema.MustNode(edtypes.HorizontalRuleType, nil))
		case "div", "section", "article", "li":
			flush()
			blocks = append(blocks, parseBlocks(schema, el)...)
		default:
			parseInline(schema, el, nil, &inline)
		}
	}
	flush()
	return blocks
}

func parseList(schema *edtypes.Schema, root *html.Node) *edtypes.Node {
	var items []*edtypes.Node
	for li := root.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.Data != "li" {
			continue
		}
		items = append(items, schema.MustNode(edtypes.ListItemType, nil, nonEmpty(schema, parseBlocks(schema, li))...))
	}
	if len(items) == 0 {
		return nil
	}
	if root.Data == "ol" {
		order := 1
		if start, err := strconv.Atoi(getAttrValue("start", root.Attr)); err == nil {
			order = start
		}
		return schema.MustNode(edtypes.OrderedListType, edtypes.Attrs{"order": order}, items...)
	}
	return schema.MustNode(edtypes.BulletListType, nil, items...)
}

func nonEmpty(schema *edtypes.Schema, blocks []*edtypes.Node) []*edtypes.Node {
	if len(blocks) == 0 {
		return []*edtypes.Node{schema.MustNode(edtypes.ParagraphType, nil)}
	}
	return blocks
}

func parseInlineChildren(schema *edtypes.Schema, root *html.Node, marks []edtypes.Mark, out *[]*edtypes.Node) {
	for el := root.FirstChild; el != nil; el = el.NextSibling {
		parseInline(schema, el, marks, out)
	}
}

func parseInline(schema *edtypes.Schema, el *html.Node, marks []edtypes.Mark, out *[]*edtypes.Node) {
	if el.Type == html.TextNode {
		text := collapseSpace(el.Data)
		if text == " " && len(*out) == 0 {
			return
		}
		*out = append(*out, schema.Text(text, marks...))
		return
	}
	if el.Type != html.ElementNode {
		return
	}

	switch el.Data {
	case "br":
		*out = append(*out, schema.MustNode(edtypes.HardBreakType, nil))
		return
	case "img":
		attrs := edtypes.Attrs{"src": getAttrValue("src", el.Attr)}
		if alt := getAttrValue("alt", el.Attr); alt != "" {
			attrs["alt"] = alt
		}
		if title := getAttrValue("title", el.Attr); title != "" {
			attrs["title"] = title
		}
		if id := getAttrValue("data-media-id", el.Attr); id != "" {
			attrs["mediaId"] = id
		}
		*out = append(*out, schema.MustNode(edtypes.ImageType, attrs))
		return
	case "strong", "b":
		marks = edtypes.AddToSet(marks, edtypes.Mark{Type: edtypes.StrongMark})
	case "em", "i":
		marks = edtypes.AddToSet(marks, edtypes.Mark{Type: edtypes.EmMark})
	case "code":
		marks = edtypes.AddToSet(marks, edtypes.Mark{Type: edtypes.CodeMark})
	case "a":
		if href := getAttrValue("href", el.Attr); href != "" {
			attrs := edtypes.Attrs{"href": href}
			if title := getAttrValue("title", el.Attr); title != "" {
				attrs["title"] = title
			}
			marks = edtypes.AddToSet(marks, edtypes.Mark{Type: edtypes.LinkMark, Attrs: attrs})
		}
	}
	parseInlineChildren(schema, el, marks, out)
}

// collapseSpace сворачивает пробельные последовательности в один пробел, как это делает браузер.
func collapseSpace(s string) string {
	var sb strings.Builder
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !space {
				sb.WriteByte(' ')
			}
			space = true
			continue
		}
		space = false
		sb.WriteRune(r)
	}
	return sb.String()
}

func textContent(root *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return strings.TrimSuffix(sb.String(), "\n")
}

func getAttrValue(key string, attrs []html.Attribute) string {
	for _, attr := range attrs {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
