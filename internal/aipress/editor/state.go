// Пакет editor реализует ядро редактора публикаций: состояние документа, транзакции, оболочку редактора
// и протокол подключения плагинов.
//
// Основные возможности:
//   - Неизменяемое состояние (State): документ, выделение и список плагинов.
//   - Транзакции из шагов (замена диапазона, марки, атрибуты узлов) с отображением позиций.
//   - Оболочка (Shell): единственный владелец состояния, сериализует все изменения, ведёт историю и уведомляет наблюдателей.
//   - Плагины объявляют только нужные обработчики: drop, paste, click, keydown и appendTransaction.
//   - Разбор HTML и простого текста из буфера обмена.
package editor

import (
	"errors"
	"fmt"

	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
)

var (
	ErrSelectionOutOfRange = edtypes.ErrPositionOutOfRange
	ErrSchemaViolation     = edtypes.ErrSchemaViolation
	ErrStaleTransaction    = errors.New("transaction was built for another state")
	ErrShellClosed         = errors.New("editor shell is closed")
)

// Selection выделение в документе. Anchor неподвижный край, Head подвижный.
type Selection struct {
	Anchor int
	Head   int
}

// Cursor пустое выделение в позиции pos.
func Cursor(pos int) Selection { return Selection{Anchor: pos, Head: pos} }

// From меньшая граница выделения.
func (s Selection) From() int { return min(s.Anchor, s.Head) }

// To большая граница выделения.
func (s Selection) To() int { return max(s.Anchor, s.Head) }

// Empty сообщает, что выделение схлопнуто в курсор.
func (s Selection) Empty() bool { return s.Anchor == s.Head }

func (s Selection) check(doc *edtypes.Node) error {
	size := doc.ContentSize()
	if s.Anchor < 0 || s.Head < 0 || s.Anchor > size || s.Head > size {
		return fmt.Errorf("%w: selection [%d, %d] not in [0, %d]", ErrSelectionOutOfRange, s.Anchor, s.Head, size)
	}
	return nil
}

func (s Selection) mapThrough(m edtypes.StepMap) Selection {
	if s.Empty() {
		return Cursor(m.Map(s.Head, 1))
	}
	return Selection{Anchor: m.Map(s.Anchor, -1), Head: m.Map(s.Head, 1)}
}

// State неизменяемое состояние редактора. Новое состояние получается только применением транзакции.
type State struct {
	Doc       *edtypes.Node
	Selection Selection
	Schema    *edtypes.Schema
	Plugins   []Plugin
}

// Initialize создаёт пустое состояние для схемы. Структурно некорректная схема даёт ошибку.
func Initialize(schema *edtypes.Schema, plugins ...Plugin) (*State, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	doc := schema.EmptyDoc()
	sel := Cursor(0)
	if doc.ContentSize() > 0 {
		sel = Cursor(1)
	}
	return &State{Doc: doc, Selection: sel, Schema: schema, Plugins: plugins}, nil
}

// NewState создаёт состояние с готовым документом, например загруженным из хранилища.
func NewState(schema *edtypes.Schema, doc *edtypes.Node, plugins ...Plugin) (*State, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if err := schema.Check(doc); err != nil {
		return nil, err
	}
	return &State{Doc: doc, Selection: Cursor(0), Schema: schema, Plugins: plugins}, nil
}

// DocSize размер содержимого документа, верхняя граница позиций.
func (s *State) DocSize() int { return s.Doc.ContentSize() }

// TextContent текстовая проекция документа.
func (s *State) TextContent() string { return s.Doc.PlainText() }

// Tr начинает транзакцию поверх этого состояния.
func (s *State) Tr() *Transaction {
	return &Transaction{before: s, doc: s.Doc, selection: s.Selection, meta: map[string]any{}}
}

// Apply применяет транзакцию и возвращает новое состояние. Исходное состояние не меняется.
// Ошибка в любом шаге или нарушение схемы отклоняет транзакцию целиком.
func (s *State) Apply(tr *Transaction) (*State, error) {
	if tr.before != s {
		return nil, ErrStaleTransaction
	}
	if tr.err != nil {
		return nil, tr.err
	}
	if err := tr.selection.check(tr.doc); err != nil {
		return nil, err
	}
	if tr.DocChanged() {
		if err := s.Schema.Check(tr.doc); err != nil {
			return nil, err
		}
	}
	return &State{Doc: tr.doc, Selection: tr.selection, Schema: s.Schema, Plugins: s.Plugins}, nil
}

// ActiveMarks объединение марок текста в выделении. Для курсора берутся марки в позиции.
func (s *State) ActiveMarks() []edtypes.Mark {
	sel := s.Selection
	if sel.Empty() {
		r, err := s.Doc.Resolve(sel.Head)
		if err != nil {
			return nil
		}
		return r.Marks()
	}
	var marks []edtypes.Mark
	s.Doc.NodesBetween(sel.From(), sel.To(), func(node *edtypes.Node, _ int) bool {
		for _, m := range node.Marks {
			if !edtypes.HasMark(marks, m.Type) {
				marks = append(marks, m)
			}
		}
		return true
	})
	return marks
}
