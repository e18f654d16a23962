package editor

import (
	"fmt"
	"maps"
	"slices"

	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
)

// Ключи метаданных транзакции.
const (
	// MetaAddToHistory false исключает транзакцию из истории отмены.
	MetaAddToHistory = "addToHistory"
	// MetaOrigin источник транзакции: имя плагина, "toolbar", "undo".
	MetaOrigin = "origin"
	// MetaLoaded помечает пустую транзакцию загрузки документа при монтировании оболочки.
	MetaLoaded = "loaded"
)

// Step одна атомарная правка документа.
type Step interface {
	Apply(doc *edtypes.Node) (*edtypes.Node, edtypes.StepMap, error)
}

// ReplaceStep заменяет диапазон [From, To] фрагментом.
type ReplaceStep struct {
	From  int
	To    int
	Slice edtypes.Slice
}

func (s ReplaceStep) Apply(doc *edtypes.Node) (*edtypes.Node, edtypes.StepMap, error) {
	out, err := edtypes.Replace(doc, s.From, s.To, s.Slice)
	if err != nil {
		return nil, edtypes.StepMap{}, err
	}
	return out, edtypes.NewStepMap(s.From, s.To, doc.ContentSize(), out.ContentSize()), nil
}

// AddMarkStep добавляет марку на диапазон.
type AddMarkStep struct {
	From int
	To   int
	Mark edtypes.Mark
}

func (s AddMarkStep) Apply(doc *edtypes.Node) (*edtypes.Node, edtypes.StepMap, error) {
	out, err := edtypes.AddMark(doc, s.From, s.To, s.Mark)
	return out, edtypes.StepMap{}, err
}

// RemoveMarkStep снимает марку с диапазона.
type RemoveMarkStep struct {
	From     int
	To       int
	MarkType string
}

func (s RemoveMarkStep) Apply(doc *edtypes.Node) (*edtypes.Node, edtypes.StepMap, error) {
	out, err := edtypes.RemoveMark(doc, s.From, s.To, s.MarkType)
	return out, edtypes.StepMap{}, err
}

// AttrStep заменяет атрибуты узла в позиции Pos.
type AttrStep struct {
	Pos   int
	Attrs edtypes.Attrs
}

func (s AttrStep) Apply(doc *edtypes.Node) (*edtypes.Node, edtypes.StepMap, error) {
	out, err := edtypes.SetNodeAttrs(doc, s.Pos, s.Attrs)
	return out, edtypes.StepMap{}, err
}

// Transaction описание правки состояния. Шаги применяются сразу к рабочей копии документа,
// поэтому позиции каждого следующего шага задаются относительно результата предыдущих.
// Первая ошибка запоминается, остальные вызовы игнорируются, а применение такой
// транзакции отклоняется.
type Transaction struct {
	before       *State
	doc          *edtypes.Node
	steps        []Step
	maps         []edtypes.StepMap
	selection    Selection
	selectionSet bool
	meta         map[string]any
	err          error
}

// Before состояние, для которого построена транзакция.
func (tr *Transaction) Before() *State { return tr.before }

// Doc документ после уже добавленных шагов.
func (tr *Transaction) Doc() *edtypes.Node { return tr.doc }

// Selection выделение после уже добавленных шагов.
func (tr *Transaction) Selection() Selection { return tr.selection }

// Steps шаги транзакции.
func (tr *Transaction) Steps() []Step { return tr.steps }

// Err первая ошибка построения.
func (tr *Transaction) Err() error { return tr.err }

// DocChanged сообщает, что транзакция меняет документ.
func (tr *Transaction) DocChanged() bool { return tr.doc != tr.before.Doc }

// DocReplaced сообщает, что документ новый для плагинов: изменён транзакцией или загружен при монтировании.
func (tr *Transaction) DocReplaced() bool { return tr.DocChanged() || tr.Meta(MetaLoaded) == true }

// SelectionSet сообщает, что выделение задано явно.
func (tr *Transaction) SelectionSet() bool { return tr.selectionSet }

// Map переносит позицию исходного документа через все шаги транзакции.
func (tr *Transaction) Map(pos int, assoc int) int {
	for _, m := range tr.maps {
		pos = m.Map(pos, assoc)
	}
	return pos
}

// SetMeta сохраняет метаданные транзакции.
func (tr *Transaction) SetMeta(key string, value any) *Transaction {
	tr.meta[key] = value
	return tr
}

// Meta возвращает метаданные транзакции.
func (tr *Transaction) Meta(key string) any { return tr.meta[key] }

// Step добавляет произвольный шаг.
func (tr *Transaction) Step(step Step) *Transaction {
	if tr.err != nil {
		return tr
	}
	doc, m, err := step.Apply(tr.doc)
	if err != nil {
		tr.err = err
		return tr
	}
	tr.doc = doc
	tr.steps = append(tr.steps, step)
	tr.maps = append(tr.maps, m)
	tr.selection = tr.selection.mapThrough(m)
	return tr
}

// ReplaceRange заменяет диапазон фрагментом.
func (tr *Transaction) ReplaceRange(from, to int, slice edtypes.Slice) *Transaction {
	return tr.Step(ReplaceStep{From: from, To: to, Slice: slice})
}

// Delete удаляет диапазон.
func (tr *Transaction) Delete(from, to int) *Transaction {
	return tr.ReplaceRange(from, to, edtypes.EmptySlice)
}

// ReplaceSelection заменяет текущее выделение фрагментом и ставит курсор после вставки.
func (tr *Transaction) ReplaceSelection(slice edtypes.Slice) *Transaction {
	if tr.err != nil {
		return tr
	}
	sel := tr.selection
	if r, err := tr.doc.Resolve(sel.From()); err == nil {
		slice = fitSlice(tr.before.Schema, r, slice)
	}
	tr.ReplaceRange(sel.From(), sel.To(), slice)
	if tr.err == nil {
		tr.setSelection(Cursor(tr.maps[len(tr.maps)-1].Map(sel.To(), 1)))
	}
	return tr
}

// fitSlice закрывает открытый край, не помещающийся в глубину позиции. Закрытые блоки на краях
// фрагмента, вставляемого внутрь текстового блока, получают пустой открытый параграф, чтобы
// текстовый блок разбился, а не принял блок внутрь себя.
func fitSlice(schema *edtypes.Schema, r *edtypes.ResolvedPos, slice edtypes.Slice) edtypes.Slice {
	slice.OpenStart = min(slice.OpenStart, r.Depth())
	if slice.IsEmpty() || !r.Parent().IsTextblock() {
		return slice
	}
	content := slice.Content
	if slice.OpenStart == 0 && !content[0].IsInline() {
		content = append([]*edtypes.Node{schema.MustNode(edtypes.ParagraphType, nil)}, content...)
		slice.OpenStart = 1
	}
	if slice.OpenEnd == 0 && !content[len(content)-1].IsInline() {
		content = append(slices.Clone(content), schema.MustNode(edtypes.ParagraphType, nil))
		slice.OpenEnd = 1
	}
	slice.Content = content
	return slice
}

// Insert вставляет узлы в позицию pos. Инлайн-узлы вне текстового блока оборачиваются в параграф,
// блочные узлы внутри текстового блока разбивают его.
func (tr *Transaction) Insert(pos int, nodes ...*edtypes.Node) *Transaction {
	if tr.err != nil || len(nodes) == 0 {
		return tr
	}
	r, err := tr.doc.Resolve(pos)
	if err != nil {
		tr.err = err
		return tr
	}
	inline := true
	for _, n := range nodes {
		inline = inline && n.IsInline()
	}
	schema := tr.before.Schema
	inTextblock := r.Parent().IsTextblock()
	switch {
	case inline == inTextblock:
		return tr.ReplaceRange(pos, pos, edtypes.Slice{Content: nodes})
	case inline:
		p, err := schema.Node(edtypes.ParagraphType, nil, nodes...)
		if err != nil {
			tr.err = err
			return tr
		}
		return tr.ReplaceRange(pos, pos, edtypes.Slice{Content: []*edtypes.Node{p}})
	default:
		before := schema.MustNode(edtypes.ParagraphType, nil)
		after := schema.MustNode(edtypes.ParagraphType, nil)
		content := append(append([]*edtypes.Node{before}, nodes...), after)
		return tr.ReplaceRange(pos, pos, edtypes.Slice{Content: content, OpenStart: 1, OpenEnd: 1})
	}
}

// InsertText вставляет текст с марками в позицию pos.
func (tr *Transaction) InsertText(pos int, text string, marks ...edtypes.Mark) *Transaction {
	if text == "" {
		return tr
	}
	return tr.Insert(pos, tr.before.Schema.Text(text, marks...))
}

// AddMark добавляет марку на диапазон.
func (tr *Transaction) AddMark(from, to int, mark edtypes.Mark) *Transaction {
	return tr.Step(AddMarkStep{From: from, To: to, Mark: mark})
}

// RemoveMark снимает марку типа markType с диапазона.
func (tr *Transaction) RemoveMark(from, to int, markType string) *Transaction {
	return tr.Step(RemoveMarkStep{From: from, To: to, MarkType: markType})
}

// SetNodeAttrs заменяет все атрибуты узла в позиции pos.
func (tr *Transaction) SetNodeAttrs(pos int, attrs edtypes.Attrs) *Transaction {
	return tr.Step(AttrStep{Pos: pos, Attrs: attrs})
}

// SetNodeAttr меняет один атрибут узла в позиции pos.
func (tr *Transaction) SetNodeAttr(pos int, key string, value any) *Transaction {
	if tr.err != nil {
		return tr
	}
	node := tr.doc.NodeAt(pos)
	if node == nil {
		tr.err = fmt.Errorf("%w: no node at %d", ErrSelectionOutOfRange, pos)
		return tr
	}
	attrs := maps.Clone(node.Attrs)
	if attrs == nil {
		attrs = edtypes.Attrs{}
	}
	attrs[key] = value
	return tr.SetNodeAttrs(pos, attrs)
}

// SetSelection задаёт выделение. Выделение вне документа отклоняет транзакцию.
func (tr *Transaction) SetSelection(sel Selection) *Transaction {
	if tr.err != nil {
		return tr
	}
	if err := sel.check(tr.doc); err != nil {
		tr.err = err
		return tr
	}
	tr.setSelection(sel)
	return tr
}

func (tr *Transaction) setSelection(sel Selection) {
	tr.selection = sel
	tr.selectionSet = true
}
