// Пакет markdown переводит Markdown в дерево документа редактора и обратно.
//
// Основные возможности:
//   - Разбор CommonMark (goldmark) во фрагмент документа для вставки в выделение.
//   - Сериализация документа в Markdown с экранированием служебных символов.
//   - Сырой HTML не исполняется: теги вырезаются строгой политикой, остаётся текст.
//   - YAML front matter у перетаскиваемых .md файлов.
package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
	policy "github.com/aisa-it/aipress/internal/aipress/redactor-policy"
)

var gm = goldmark.New()

// Parse разбирает Markdown во фрагмент. Крайние параграфы открыты и сливаются с текстом в точке вставки.
func Parse(src []byte, schema *edtypes.Schema) (edtypes.Slice, error) {
	blocks := parseDocument(src, schema)
	slice := edtypes.Slice{Content: blocks}
	if len(blocks) > 0 && blocks[0].Type == edtypes.ParagraphType {
		slice.OpenStart = 1
	}
	if len(blocks) > 0 && blocks[len(blocks)-1].Type == edtypes.ParagraphType {
		slice.OpenEnd = 1
	}
	return slice, nil
}

// ParseDocument разбирает Markdown в целый документ и проверяет его схемой.
func ParseDocument(src []byte, schema *edtypes.Schema) (*edtypes.Node, error) {
	blocks := parseDocument(src, schema)
	if len(blocks) == 0 {
		return schema.EmptyDoc(), nil
	}
	doc, err := schema.Node(schema.TopNode, nil, blocks...)
	if err != nil {
		return nil, err
	}
	if err := schema.Check(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func parseDocument(src []byte, schema *edtypes.Schema) []*edtypes.Node {
	root := gm.Parser().Parse(text.NewReader(src))
	p := &parser{src: src, schema: schema}
	return p.blocks(root)
}

type parser struct {
	src    []byte
	schema *edtypes.Schema
}

func (p *parser) blocks(parent ast.Node) []*edtypes.Node {
	var out []*edtypes.Node
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if block := p.block(n); block != nil {
			out = append(out, block)
		}
	}
	return out
}

func (p *parser) block(n ast.Node) *edtypes.Node {
	s := p.schema
	switch node := n.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		content := p.inlines(n, nil)
		if len(content) == 0 {
			return nil
		}
		return s.MustNode(edtypes.ParagraphType, nil, content...)
	case *ast.Heading:
		return s.MustNode(edtypes.HeadingType, edtypes.Attrs{"level": node.Level}, p.inlines(n, nil)...)
	case *ast.Blockquote:
		return s.MustNode(edtypes.BlockquoteType, nil, p.nonEmpty(p.blocks(n))...)
	case *ast.List:
		var items []*edtypes.Node
		for li := n.FirstChild(); li != nil; li = li.NextSibling() {
			items = append(items, s.MustNode(edtypes.ListItemType, nil, p.nonEmpty(p.blocks(li))...))
		}
		if node.IsOrdered() {
			return s.MustNode(edtypes.OrderedListType, edtypes.Attrs{"order": node.Start}, items...)
		}
		return s.MustNode(edtypes.BulletListType, nil, items...)
	case *ast.FencedCodeBlock:
		var attrs edtypes.Attrs
		if lang := string(node.Language(p.src)); lang != "" {
			attrs = edtypes.Attrs{"language": lang}
		}
		return s.MustNode(edtypes.CodeBlockType, attrs, p.codeText(n)...)
	case *ast.CodeBlock:
		return s.MustNode(edtypes.CodeBlockType, nil, p.codeText(n)...)
	case *ast.ThematicBreak:
		return s.MustNode(edtypes.HorizontalRuleType, nil)
	case *ast.HTMLBlock:
		raw := p.lines(n)
		if node.HasClosure() {
			raw += string(node.ClosureLine.Value(p.src))
		}
		stripped := strings.TrimSpace(policy.StripTagsPolicy.Sanitize(raw))
		if stripped == "" {
			return nil
		}
		return s.MustNode(edtypes.ParagraphType, nil, s.Text(stripped))
	}
	return nil
}

func (p *parser) nonEmpty(blocks []*edtypes.Node) []*edtypes.Node {
	if len(blocks) == 0 {
		return []*edtypes.Node{p.schema.MustNode(edtypes.ParagraphType, nil)}
	}
	return blocks
}

func (p *parser) lines(n ast.Node) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(p.src))
	}
	return buf.String()
}

func (p *parser) codeText(n ast.Node) []*edtypes.Node {
	code := strings.TrimSuffix(p.lines(n), "\n")
	if code == "" {
		return nil
	}
	return []*edtypes.Node{p.schema.Text(code)}
}

func (p *parser) inlines(parent ast.Node, marks []edtypes.Mark) []*edtypes.Node {
	s := p.schema
	var out []*edtypes.Node
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Text:
			out = append(out, s.Text(unescape(node.Segment.Value(p.src)), marks...))
			switch {
			case node.HardLineBreak():
				out = append(out, s.MustNode(edtypes.HardBreakType, nil))
			case node.SoftLineBreak():
				out = append(out, s.Text(" ", marks...))
			}
		case *ast.String:
			out = append(out, s.Text(unescape(node.Value), marks...))
		case *ast.Emphasis:
			markType := edtypes.EmMark
			if node.Level >= 2 {
				markType = edtypes.StrongMark
			}
			out = append(out, p.inlines(n, edtypes.AddToSet(marks, edtypes.Mark{Type: markType}))...)
		case *ast.CodeSpan:
			var buf bytes.Buffer
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					buf.Write(t.Segment.Value(p.src))
				}
			}
			out = append(out, s.Text(buf.String(), edtypes.AddToSet(marks, edtypes.Mark{Type: edtypes.CodeMark})...))
		case *ast.Link:
			out = append(out, p.inlines(n, edtypes.AddToSet(marks, linkMark(string(node.Destination), string(node.Title))))...)
		case *ast.AutoLink:
			url := string(node.URL(p.src))
			out = append(out, s.Text(string(node.Label(p.src)), edtypes.AddToSet(marks, linkMark(url, ""))...))
		case *ast.Image:
			attrs := edtypes.Attrs{"src": string(node.Destination)}
			if alt := plainText(n, p.src); alt != "" {
				attrs["alt"] = alt
			}
			if title := string(node.Title); title != "" {
				attrs["title"] = title
			}
			out = append(out, s.MustNode(edtypes.ImageType, attrs))
		case *ast.RawHTML:
			var buf bytes.Buffer
			for i := 0; i < node.Segments.Len(); i++ {
				seg := node.Segments.At(i)
				buf.Write(seg.Value(p.src))
			}
			if stripped := policy.StripTagsPolicy.Sanitize(buf.String()); stripped != "" {
				out = append(out, s.Text(stripped, marks...))
			}
		default:
			out = append(out, p.inlines(n, marks)...)
		}
	}
	return out
}

// linkMark марка ссылки. Небезопасный href не переносится, текст ссылки остаётся.
func linkMark(href, title string) edtypes.Mark {
	attrs := edtypes.Attrs{}
	if policy.ValidLinkHref(href) {
		attrs["href"] = href
	}
	if title != "" {
		attrs["title"] = title
	}
	return edtypes.Mark{Type: edtypes.LinkMark, Attrs: attrs}
}

func plainText(n ast.Node, src []byte) string {
	var sb strings.Builder
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(unescapeBytes(t.Segment.Value(src)))
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

func unescape(b []byte) string { return string(unescapeBytes(b)) }

func unescapeBytes(b []byte) []byte {
	b = util.UnescapePunctuations(b)
	b = util.ResolveNumericReferences(b)
	return util.ResolveEntityNames(b)
}
