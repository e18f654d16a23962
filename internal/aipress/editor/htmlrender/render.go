// Пакет htmlrender отрисовывает документ редактора в компактный HTML для предпросмотра и писем.
//
// Основные возможности:
//   - Узлы схемы по умолчанию переводятся в теги HTML, текст экранируется.
//   - Ссылки проверяются повторно: небезопасный href не попадает в результат.
//   - Результат минифицируется.
package htmlrender

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/tdewolff/minify/v2"
	minhtml "github.com/tdewolff/minify/v2/html"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
	policy "github.com/aisa-it/aipress/internal/aipress/redactor-policy"
)

var minifier *minify.M = minify.New()

func init() {
	minifier.Add("text/html", &minhtml.Minifier{KeepEndTags: true})
}

// марки снаружи внутрь
var markOrder = []string{edtypes.LinkMark, edtypes.StrongMark, edtypes.EmMark, edtypes.CodeMark}

// Render отрисовывает документ в минифицированный HTML.
func Render(doc *edtypes.Node) ([]byte, error) {
	var buf bytes.Buffer
	for _, block := range doc.Content {
		if err := html.Render(&buf, renderNode(block)); err != nil {
			return nil, err
		}
	}
	return minifier.Bytes("text/html", buf.Bytes())
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

func renderNode(n *edtypes.Node) *html.Node {
	var el *html.Node
	switch n.Type {
	case edtypes.ParagraphType:
		el = element(atom.P)
	case edtypes.HeadingType:
		level := min(max(n.Attrs.Int("level"), 1), 6)
		el = element(atom.Lookup([]byte("h" + strconv.Itoa(level))))
	case edtypes.BlockquoteType:
		el = element(atom.Blockquote)
	case edtypes.BulletListType:
		el = element(atom.Ul)
	case edtypes.OrderedListType:
		el = element(atom.Ol)
		if order := n.Attrs.Int("order"); order != 1 {
			el.Attr = append(el.Attr, attr("start", strconv.Itoa(order)))
		}
	case edtypes.ListItemType:
		el = element(atom.Li)
	case edtypes.CodeBlockType:
		el = element(atom.Pre)
		code := element(atom.Code)
		if lang := n.Attr("language"); lang != "" {
			code.Attr = append(code.Attr, attr("class", "language-"+lang))
		}
		code.AppendChild(&html.Node{Type: html.TextNode, Data: n.TextContent()})
		el.AppendChild(code)
		return el
	case edtypes.HorizontalRuleType:
		return element(atom.Hr)
	case edtypes.HardBreakType:
		return element(atom.Br)
	case edtypes.ImageType:
		return renderImage(n)
	case edtypes.TextType:
		return renderText(n)
	default:
		el = element(atom.Div)
	}
	for _, c := range n.Content {
		el.AppendChild(renderNode(c))
	}
	return el
}

func renderImage(n *edtypes.Node) *html.Node {
	img := element(atom.Img)
	if src := n.Attr("src"); policy.ValidLinkHref(src) || strings.HasPrefix(src, "data:image/") {
		img.Attr = append(img.Attr, attr("src", src))
	}
	for _, key := range []string{"alt", "title"} {
		if v := n.Attr(key); v != "" {
			img.Attr = append(img.Attr, attr(key, v))
		}
	}
	if id := n.Attr("mediaId"); id != "" {
		img.Attr = append(img.Attr, attr("data-media-id", id))
	}
	return img
}

func renderText(n *edtypes.Node) *html.Node {
	out := &html.Node{Type: html.TextNode, Data: n.Text}
	for i := len(markOrder) - 1; i >= 0; i-- {
		m, ok := edtypes.FindMark(n.Marks, markOrder[i])
		if !ok {
			continue
		}
		var wrap *html.Node
		switch m.Type {
		case edtypes.LinkMark:
			wrap = element(atom.A)
			if href := m.Attr("href"); policy.ValidLinkHref(href) {
				wrap.Attr = append(wrap.Attr, attr("href", href))
			}
			if title := m.Attr("title"); title != "" {
				wrap.Attr = append(wrap.Attr, attr("title", title))
			}
		case edtypes.StrongMark:
			wrap = element(atom.Strong)
		case edtypes.EmMark:
			wrap = element(atom.Em)
		case edtypes.CodeMark:
			wrap = element(atom.Code)
		}
		wrap.AppendChild(out)
		out = wrap
	}
	return out
}
