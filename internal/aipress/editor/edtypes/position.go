package edtypes

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrPositionOutOfRange = errors.New("position out of range")
	ErrInvalidSlice       = errors.New("slice does not fit position")
)

// Slice фрагмент документа для вставки. OpenStart и OpenEnd задают, на сколько уровней
// открыты левый и правый края фрагмента: открытый узел сливается с соседним узлом документа.
type Slice struct {
	Content   []*Node
	OpenStart int
	OpenEnd   int
}

// EmptySlice пустой фрагмент, используется для удаления диапазона.
var EmptySlice = Slice{}

// Size размер фрагмента в позициях без учёта открытых краёв.
func (s Slice) Size() int { return contentSize(s.Content) - s.OpenStart - s.OpenEnd }

// IsEmpty сообщает, что фрагмент ничего не вставляет.
func (s Slice) IsEmpty() bool { return len(s.Content) == 0 }

// ResolvedPos позиция, разложенная по уровням вложенности.
type ResolvedPos struct {
	Pos          int
	ParentOffset int

	path []level
}

type level struct {
	node  *Node
	index int
	start int
}

// Depth глубина позиции: 0 для позиций между блоками верхнего уровня.
func (r *ResolvedPos) Depth() int { return len(r.path) - 1 }

// Node узел-предок на глубине d.
func (r *ResolvedPos) Node(d int) *Node { return r.path[d].node }

// Parent непосредственный родитель позиции.
func (r *ResolvedPos) Parent() *Node { return r.path[len(r.path)-1].node }

// Index индекс дочернего узла на глубине d, перед которым или внутри которого лежит позиция.
func (r *ResolvedPos) Index(d int) int { return r.path[d].index }

// Start абсолютная позиция начала содержимого предка на глубине d.
func (r *ResolvedPos) Start(d int) int { return r.path[d].start }

// NodeAfter узел, начинающийся ровно в этой позиции, если он есть.
func (r *ResolvedPos) NodeAfter() *Node {
	parent := r.Parent()
	idx := r.path[len(r.path)-1].index
	if idx >= len(parent.Content) {
		return nil
	}
	child := parent.Content[idx]
	if childStart(parent, idx) != r.ParentOffset {
		return nil
	}
	return child
}

// Marks марки в позиции: марки текста, в котором или сразу перед которым стоит курсор.
func (r *ResolvedPos) Marks() []Mark {
	parent := r.Parent()
	idx := r.path[len(r.path)-1].index
	if idx < len(parent.Content) && childStart(parent, idx) < r.ParentOffset {
		return parent.Content[idx].Marks
	}
	if idx > 0 {
		return parent.Content[idx-1].Marks
	}
	if idx < len(parent.Content) {
		return parent.Content[idx].Marks
	}
	return nil
}

func childStart(parent *Node, idx int) int {
	return contentSize(parent.Content[:idx])
}

// Resolve раскладывает позицию pos относительно корня документа.
func (n *Node) Resolve(pos int) (*ResolvedPos, error) {
	if pos < 0 || pos > n.ContentSize() {
		return nil, fmt.Errorf("%w: %d not in [0, %d]", ErrPositionOutOfRange, pos, n.ContentSize())
	}
	r := &ResolvedPos{Pos: pos}
	node, start := n, 0
	for {
		offset := pos - start
		idx, childPos := 0, 0
		for idx < len(node.Content) {
			end := childPos + node.Content[idx].size
			if end > offset {
				break
			}
			childPos = end
			idx++
		}
		r.path = append(r.path, level{node: node, index: idx, start: start})
		if idx == len(node.Content) || childPos == offset {
			r.ParentOffset = offset
			return r, nil
		}
		child := node.Content[idx]
		if child.IsLeaf() {
			r.ParentOffset = offset
			return r, nil
		}
		node, start = child, start+childPos+1
	}
}

// NodeAt узел, начинающийся в позиции pos.
func (n *Node) NodeAt(pos int) *Node {
	r, err := n.Resolve(pos)
	if err != nil {
		return nil
	}
	return r.NodeAfter()
}

// Slice вырезает фрагмент между двумя позициями. Открытые края соответствуют глубине позиций
// относительно их общего предка.
func (n *Node) Slice(from, to int) (Slice, error) {
	if from > to {
		from, to = to, from
	}
	rFrom, err := n.Resolve(from)
	if err != nil {
		return Slice{}, err
	}
	rTo, err := n.Resolve(to)
	if err != nil {
		return Slice{}, err
	}
	shared := 0
	for d := 0; d < min(rFrom.Depth(), rTo.Depth()); d++ {
		if rFrom.Index(d) != rTo.Index(d) {
			break
		}
		shared = d + 1
	}
	start := rFrom.Start(shared)
	content := cutFragment(rFrom.Node(shared).Content, from-start, to-start)
	return Slice{Content: content, OpenStart: rFrom.Depth() - shared, OpenEnd: rTo.Depth() - shared}, nil
}

// cutFragment оставляет часть содержимого между from и to (позиции относительно начала
// фрагмента). Узлы, пересекающие границу, обрезаются, но сохраняются как открытые.
func cutFragment(content []*Node, from, to int) []*Node {
	var out []*Node
	pos := 0
	for _, child := range content {
		end := pos + child.size
		if end > from && pos < to {
			switch {
			case pos >= from && end <= to:
				out = append(out, child)
			case child.IsText():
				runes := []rune(child.Text)
				out = append(out, child.withText(string(runes[max(0, from-pos):min(len(runes), to-pos)])))
			case child.IsLeaf():
				out = append(out, child)
			default:
				out = append(out, child.WithContent(cutFragment(child.Content, max(0, from-pos-1), min(child.ContentSize(), to-pos-1))))
			}
		}
		pos = end
		if pos >= to {
			break
		}
	}
	return out
}

// Replace заменяет диапазон [from, to] фрагментом slice и возвращает новый корень.
// Левая часть документа, фрагмент и правая часть склеиваются по открытым краям:
// соседние узлы одного типа (или два текстовых блока) сливаются в один.
// Исходное дерево не изменяется.
func Replace(doc *Node, from, to int, slice Slice) (*Node, error) {
	if from > to {
		return nil, fmt.Errorf("%w: from %d > to %d", ErrPositionOutOfRange, from, to)
	}
	rFrom, err := doc.Resolve(from)
	if err != nil {
		return nil, err
	}
	rTo, err := doc.Resolve(to)
	if err != nil {
		return nil, err
	}
	if slice.OpenStart < 0 || slice.OpenEnd < 0 || slice.OpenStart > rFrom.Depth() {
		return nil, fmt.Errorf("%w: open start %d at depth %d", ErrInvalidSlice, slice.OpenStart, rFrom.Depth())
	}
	left := cutFragment(doc.Content, 0, from)
	right := cutFragment(doc.Content, to, doc.ContentSize())

	leftOpen := rFrom.Depth()
	if !slice.IsEmpty() {
		base := rFrom.Depth() - slice.OpenStart
		left = appendAt(left, base, slice.Content, slice.OpenStart)
		leftOpen = base + slice.OpenEnd
	}
	return doc.WithContent(joinFragments(left, right, min(leftOpen, rTo.Depth()))), nil
}

// appendAt присоединяет b к правому краю frag на глубине depth.
func appendAt(frag []*Node, depth int, b []*Node, join int) []*Node {
	if depth == 0 || len(frag) == 0 {
		return joinFragments(frag, b, join)
	}
	last := frag[len(frag)-1]
	out := slices.Clone(frag[:len(frag)-1])
	return append(out, last.WithContent(appendAt(last.Content, depth-1, b, join)))
}

// joinFragments склеивает a и b, сливая последний узел a с первым узлом b на depth уровней вглубь.
func joinFragments(a, b []*Node, depth int) []*Node {
	out := make([]*Node, 0, len(a)+len(b))
	if depth > 0 && len(a) > 0 && len(b) > 0 && joinable(a[len(a)-1], b[0]) {
		last, first := a[len(a)-1], b[0]
		merged := last.WithContent(joinFragments(last.Content, first.Content, depth-1))
		out = append(out, a[:len(a)-1]...)
		out = append(out, merged)
		out = append(out, b[1:]...)
		return normalizeInline(out)
	}
	out = append(out, a...)
	out = append(out, b...)
	return normalizeInline(out)
}

func joinable(a, b *Node) bool {
	if a.IsLeaf() || b.IsLeaf() {
		return false
	}
	return a.Type == b.Type || (a.IsTextblock() && b.IsTextblock())
}

// AddMark добавляет марку на текст в диапазоне [from, to).
func AddMark(doc *Node, from, to int, mark Mark) (*Node, error) {
	return mapMarks(doc, from, to, func(marks []Mark) []Mark { return AddToSet(marks, mark) })
}

// RemoveMark снимает марки типа markType с текста в диапазоне [from, to).
func RemoveMark(doc *Node, from, to int, markType string) (*Node, error) {
	return mapMarks(doc, from, to, func(marks []Mark) []Mark { return RemoveFromSet(marks, markType) })
}

func mapMarks(doc *Node, from, to int, f func([]Mark) []Mark) (*Node, error) {
	if from < 0 || to > doc.ContentSize() || from > to {
		return nil, fmt.Errorf("%w: [%d, %d) not in [0, %d]", ErrPositionOutOfRange, from, to, doc.ContentSize())
	}
	content, changed := mapTextRange(doc.Content, from, to, f)
	if !changed {
		return doc, nil
	}
	return doc.WithContent(content), nil
}

func mapTextRange(content []*Node, from, to int, f func([]Mark) []Mark) ([]*Node, bool) {
	changed := false
	out := make([]*Node, 0, len(content))
	pos := 0
	for _, c := range content {
		end := pos + c.size
		if end <= from || pos >= to {
			out = append(out, c)
			pos = end
			continue
		}
		switch {
		case c.IsText():
			marks := f(c.Marks)
			if sameMarks(marks, c.Marks) {
				out = append(out, c)
				break
			}
			changed = true
			runes := []rune(c.Text)
			s, e := max(0, from-pos), min(len(runes), to-pos)
			if s > 0 {
				out = append(out, c.withText(string(runes[:s])))
			}
			out = append(out, c.withText(string(runes[s:e])).WithMarks(marks))
			if e < len(runes) {
				out = append(out, c.withText(string(runes[e:])))
			}
		case !c.IsLeaf():
			inner, ch := mapTextRange(c.Content, from-pos-1, to-pos-1, f)
			if ch {
				changed = true
				out = append(out, c.WithContent(inner))
			} else {
				out = append(out, c)
			}
		default:
			out = append(out, c)
		}
		pos = end
	}
	return out, changed
}

// SetNodeAttrs заменяет атрибуты узла, начинающегося в позиции pos.
func SetNodeAttrs(doc *Node, pos int, attrs Attrs) (*Node, error) {
	r, err := doc.Resolve(pos)
	if err != nil {
		return nil, err
	}
	target := r.NodeAfter()
	if target == nil || target.IsText() {
		return nil, fmt.Errorf("%w: no node at %d", ErrPositionOutOfRange, pos)
	}
	updated := target.WithAttrs(attrs)
	for d := r.Depth(); d >= 0; d-- {
		parent := r.Node(d)
		content := slices.Clone(parent.Content)
		content[r.Index(d)] = updated
		updated = parent.WithContent(content)
	}
	return updated, nil
}

// StepMap отображает позиции документа до правки в позиции после неё.
type StepMap struct {
	From     int
	To       int
	Inserted int
}

// NewStepMap строит отображение для замены [from, to] при изменении размера документа с
// oldSize на newSize.
func NewStepMap(from, to, oldSize, newSize int) StepMap {
	return StepMap{From: from, To: to, Inserted: to - from + newSize - oldSize}
}

// Map переносит позицию. Позиции внутри заменённого диапазона прижимаются к его началу при
// assoc < 0 и к концу вставки при assoc >= 0.
func (m StepMap) Map(pos int, assoc int) int {
	switch {
	case pos < m.From:
		return pos
	case pos > m.To:
		return pos + m.Inserted - (m.To - m.From)
	case pos == m.From && pos < m.To:
		return pos
	case assoc < 0:
		return m.From
	default:
		return m.From + m.Inserted
	}
}
