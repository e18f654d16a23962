// Пакет edtypes описывает неизменяемую модель документа редактора: узлы, марки, схему и
// позиционную арифметику в стиле ProseMirror.
//
// Основные возможности:
//   - Узлы (Node) неизменяемы: любая правка возвращает новое дерево, переиспользуя нетронутые поддеревья.
//   - Позиции: текст занимает одну позицию на руну, листовой узел одну, блок 2 + размер содержимого.
//   - Вырезание диапазона (Cut) и склейка фрагментов (Replace) для транзакций редактора.
//   - Марки (strong, em, code, link) поверх диапазонов инлайн-контента, с пересечениями.
package edtypes

import (
	"maps"
	"reflect"
	"slices"
	"strings"
	"unicode/utf8"
)

// Attrs атрибуты узла или марки.
type Attrs map[string]any

func (a Attrs) clone() Attrs {
	if a == nil {
		return nil
	}
	return maps.Clone(a)
}

// String безопасно извлекает строковый атрибут.
func (a Attrs) String(key string) string {
	if a == nil {
		return ""
	}
	s, _ := a[key].(string)
	return s
}

// Int извлекает целочисленный атрибут. Из JSON приходит float64.
func (a Attrs) Int(key string) int {
	if a == nil {
		return 0
	}
	switch v := a[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Node узел дерева документа. Поля экспортированы только для чтения, изменять узел после
// создания нельзя: на одно поддерево могут ссылаться несколько состояний.
type Node struct {
	Type    string
	Attrs   Attrs
	Content []*Node
	Marks   []Mark
	Text    string

	spec *NodeSpec
	size int
}

func newNode(spec *NodeSpec, typ string, attrs Attrs, content []*Node, marks []Mark, text string) *Node {
	n := &Node{
		Type:    typ,
		Attrs:   attrs,
		Content: content,
		Marks:   marks,
		Text:    text,
		spec:    spec,
	}
	switch {
	case typ == TextType:
		n.size = utf8.RuneCountInString(text)
	case spec != nil && spec.Leaf:
		n.size = 1
	default:
		n.size = 2 + contentSize(content)
	}
	return n
}

// IsText сообщает, является ли узел текстовым.
func (n *Node) IsText() bool { return n.Type == TextType }

// IsLeaf сообщает, что у узла нет содержимого по схеме (image, hardBreak, horizontalRule).
func (n *Node) IsLeaf() bool { return n.IsText() || (n.spec != nil && n.spec.Leaf) }

// IsInline сообщает, что узел размещается внутри текстового блока.
func (n *Node) IsInline() bool { return n.IsText() || (n.spec != nil && n.spec.Inline) }

// IsTextblock сообщает, что узел содержит инлайн-контент (paragraph, heading, codeBlock).
func (n *Node) IsTextblock() bool { return n.spec != nil && n.spec.Textblock }

// Spec возвращает описание типа узла из схемы.
func (n *Node) Spec() *NodeSpec { return n.spec }

// Size размер узла в позициях.
func (n *Node) Size() int { return n.size }

// ContentSize размер содержимого узла, т.е. максимальная позиция внутри него.
func (n *Node) ContentSize() int {
	if n.IsLeaf() {
		return 0
	}
	return n.size - 2
}

// WithContent возвращает копию узла с новым содержимым. Исходный узел не меняется.
func (n *Node) WithContent(content []*Node) *Node {
	return newNode(n.spec, n.Type, n.Attrs, normalizeInline(content), n.Marks, n.Text)
}

// WithAttrs возвращает копию узла с заменёнными атрибутами.
func (n *Node) WithAttrs(attrs Attrs) *Node {
	return newNode(n.spec, n.Type, attrs, n.Content, n.Marks, n.Text)
}

// WithMarks возвращает копию узла с указанным набором марок.
func (n *Node) WithMarks(marks []Mark) *Node {
	return newNode(n.spec, n.Type, n.Attrs, n.Content, sortMarks(marks), n.Text)
}

func (n *Node) withText(text string) *Node {
	return newNode(n.spec, n.Type, n.Attrs, nil, n.Marks, text)
}

// Attr возвращает строковый атрибут узла.
func (n *Node) Attr(key string) string { return n.Attrs.String(key) }

// Descendants обходит потомков в порядке документа, передавая позицию начала каждого узла.
// Если f возвращает false, потомки этого узла не посещаются.
func (n *Node) Descendants(f func(node *Node, pos int, parent *Node) bool) {
	descend(n, 0, f)
}

func descend(parent *Node, base int, f func(*Node, int, *Node) bool) {
	pos := base
	for _, child := range parent.Content {
		if f(child, pos, parent) && !child.IsLeaf() {
			descend(child, pos+1, f)
		}
		pos += child.size
	}
}

// NodesBetween обходит узлы, пересекающиеся с диапазоном [from, to).
func (n *Node) NodesBetween(from, to int, f func(node *Node, pos int) bool) {
	nodesBetween(n.Content, from, to, 0, f)
}

func nodesBetween(children []*Node, from, to, base int, f func(*Node, int) bool) {
	pos := 0
	for _, child := range children {
		end := pos + child.size
		if (end > from && pos < to) || (from == to && pos < from && from <= end) {
			if f(child, base+pos) && !child.IsLeaf() {
				nodesBetween(child.Content, max(0, from-pos-1), min(child.ContentSize(), to-pos-1), base+pos+1, f)
			}
		}
		pos = end
		if pos > to {
			break
		}
	}
}

// TextContent склеивает весь текст узла без разделителей.
func (n *Node) TextContent() string {
	if n.IsText() {
		return n.Text
	}
	var sb strings.Builder
	n.Descendants(func(node *Node, _ int, _ *Node) bool {
		if node.IsText() {
			sb.WriteString(node.Text)
		}
		return true
	})
	return sb.String()
}

// PlainText текстовая проекция документа: текстовые блоки разделены переводом строки,
// hardBreak превращается в перевод строки, изображения не дают текста.
func (n *Node) PlainText() string {
	var blocks []string
	var walk func(node *Node)
	walk = func(node *Node) {
		if node.IsTextblock() {
			var sb strings.Builder
			for _, c := range node.Content {
				switch {
				case c.IsText():
					sb.WriteString(c.Text)
				case c.Type == HardBreakType:
					sb.WriteString("\n")
				}
			}
			blocks = append(blocks, sb.String())
			return
		}
		for _, c := range node.Content {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(blocks, "\n")
}

// CharCount количество символов текстовой проекции без переводов строк.
func (n *Node) CharCount() int {
	return utf8.RuneCountInString(n.TextContent())
}

// Equal структурное сравнение узлов.
func (n *Node) Equal(o *Node) bool {
	if n == o {
		return true
	}
	if n == nil || o == nil {
		return false
	}
	if n.Type != o.Type || n.Text != o.Text || !sameMarks(n.Marks, o.Marks) || !attrsEqual(n.Attrs, o.Attrs) {
		return false
	}
	return slices.EqualFunc(n.Content, o.Content, (*Node).Equal)
}

func attrsEqual(a, b Attrs) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func contentSize(content []*Node) int {
	s := 0
	for _, c := range content {
		s += c.size
	}
	return s
}

// normalizeInline убирает пустые текстовые узлы и склеивает соседние тексты с одинаковыми марками.
func normalizeInline(content []*Node) []*Node {
	if len(content) == 0 {
		return content
	}
	out := make([]*Node, 0, len(content))
	for _, c := range content {
		if c.IsText() && c.Text == "" {
			continue
		}
		if len(out) > 0 {
			last := out[len(out)-1]
			if last.IsText() && c.IsText() && sameMarks(last.Marks, c.Marks) {
				out[len(out)-1] = last.withText(last.Text + c.Text)
				continue
			}
		}
		out = append(out, c)
	}
	return out
}
