package markdown

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	md "github.com/nao1215/markdown"

	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
)

// markPriority порядок вложенности марок: ссылка снаружи, код внутри.
var markPriority = []string{edtypes.LinkMark, edtypes.StrongMark, edtypes.EmMark, edtypes.CodeMark}

var inlineEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
	">", `\>`,
	"&", `\&`,
)

var (
	lineStartRe  = regexp.MustCompile(`^(\s*)([#>+\-=]|\d+[.)])`)
	titleEscaper = strings.NewReplacer(`"`, `\"`)
	urlSpaceRe   = regexp.MustCompile(`[\s()]`)
)

// Serialize сериализует документ в Markdown.
func Serialize(doc *edtypes.Node) string {
	return strings.Join(serializeBlocks(doc.Content), "\n\n") + "\n"
}

func serializeBlocks(blocks []*edtypes.Node) []string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, serializeBlock(b))
	}
	return out
}

func serializeBlock(n *edtypes.Node) string {
	switch n.Type {
	case edtypes.ParagraphType:
		return escapeLineStart(serializeInline(n.Content))
	case edtypes.HeadingType:
		level := min(max(n.Attrs.Int("level"), 1), 6)
		return strings.Repeat("#", level) + " " + serializeInline(n.Content)
	case edtypes.BlockquoteType:
		return prefixLines(strings.Join(serializeBlocks(n.Content), "\n\n"), "> ", ">")
	case edtypes.BulletListType:
		items := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			items = append(items, listItem("* ", item))
		}
		return strings.Join(items, "\n")
	case edtypes.OrderedListType:
		order := n.Attrs.Int("order")
		if order == 0 && n.Attrs["order"] == nil {
			order = 1
		}
		items := make([]string, 0, len(n.Content))
		for i, item := range n.Content {
			items = append(items, listItem(strconv.Itoa(order+i)+". ", item))
		}
		return strings.Join(items, "\n")
	case edtypes.CodeBlockType:
		text := n.TextContent()
		fence := "```"
		for strings.Contains(text, fence) {
			fence += "`"
		}
		return fence + n.Attr("language") + "\n" + text + "\n" + fence
	case edtypes.HorizontalRuleType:
		return "---"
	}
	return serializeInline(n.Content)
}

// listItem первая строка получает маркер, остальные выравниваются по его ширине.
func listItem(marker string, item *edtypes.Node) string {
	body := strings.Join(serializeBlocks(item.Content), "\n\n")
	indent := strings.Repeat(" ", len(marker))
	lines := strings.Split(body, "\n")
	for i := range lines {
		switch {
		case i == 0:
			lines[i] = marker + lines[i]
		case lines[i] != "":
			lines[i] = indent + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}

func prefixLines(body, prefix, emptyPrefix string) string {
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		if l == "" {
			lines[i] = emptyPrefix
		} else {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

func escapeLineStart(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if loc := lineStartRe.FindStringSubmatchIndex(l); loc != nil {
			// экранируем последний символ маркера: "#", "1." -> "1\."
			end := loc[5] - 1
			lines[i] = l[:end] + `\` + l[end:]
		}
	}
	return strings.Join(lines, "\n")
}

// serializeInline группирует соседние узлы с общей внешней маркой, чтобы марка открывалась
// и закрывалась один раз на всю группу.
func serializeInline(nodes []*edtypes.Node) string {
	var sb strings.Builder
	for i := 0; i < len(nodes); {
		n := nodes[i]
		mark, ok := outerMark(n.Marks)
		if !ok {
			sb.WriteString(serializeLeaf(n))
			i++
			continue
		}
		j := i + 1
		for j < len(nodes) && hasExactMark(nodes[j].Marks, mark) {
			if mark.Type == edtypes.CodeMark && len(nodes[j].Marks) > 1 {
				break
			}
			j++
		}
		group := make([]*edtypes.Node, 0, j-i)
		for _, g := range nodes[i:j] {
			group = append(group, g.WithMarks(edtypes.RemoveFromSet(g.Marks, mark.Type)))
		}
		sb.WriteString(wrapMark(mark, group))
		i = j
	}
	return sb.String()
}

func wrapMark(mark edtypes.Mark, group []*edtypes.Node) string {
	switch mark.Type {
	case edtypes.CodeMark:
		var raw strings.Builder
		for _, g := range group {
			raw.WriteString(g.Text)
		}
		return codeSpan(raw.String())
	case edtypes.StrongMark:
		return md.Bold(serializeInline(group))
	case edtypes.EmMark:
		return md.Italic(serializeInline(group))
	case edtypes.LinkMark:
		return fmt.Sprintf("[%s](%s)", serializeInline(group), destination(mark.Attr("href"), mark.Attr("title")))
	}
	return serializeInline(group)
}

// codeSpan подбирает ограничитель длиннее любой последовательности обратных кавычек внутри.
func codeSpan(text string) string {
	if !strings.Contains(text, "`") {
		return md.Code(text)
	}
	fence := "``"
	for strings.Contains(text, fence) {
		fence += "`"
	}
	return fence + " " + text + " " + fence
}

func destination(href, title string) string {
	if urlSpaceRe.MatchString(href) {
		href = "<" + href + ">"
	}
	if title == "" {
		return href
	}
	return href + ` "` + titleEscaper.Replace(title) + `"`
}

func serializeLeaf(n *edtypes.Node) string {
	switch n.Type {
	case edtypes.TextType:
		return inlineEscaper.Replace(n.Text)
	case edtypes.HardBreakType:
		return "\\\n"
	case edtypes.ImageType:
		return fmt.Sprintf("![%s](%s)", inlineEscaper.Replace(n.Attr("alt")), destination(n.Attr("src"), n.Attr("title")))
	}
	return ""
}

func outerMark(marks []edtypes.Mark) (edtypes.Mark, bool) {
	for _, typ := range markPriority {
		if m, ok := edtypes.FindMark(marks, typ); ok {
			return m, true
		}
	}
	return edtypes.Mark{}, false
}

func hasExactMark(marks []edtypes.Mark, mark edtypes.Mark) bool {
	m, ok := edtypes.FindMark(marks, mark.Type)
	return ok && m.Eq(mark)
}
