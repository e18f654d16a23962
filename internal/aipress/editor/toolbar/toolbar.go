// Пакет toolbar переводит команды панели форматирования в транзакции редактора.
//
// Основные возможности:
//   - Закрытый набор команд: Bold, Italic, Link, Image, MarkdownToggle.
//   - Активные марки текущего выделения пересчитываются после каждого изменения состояния.
//   - Команды не повторяются при ошибке: неудачное чтение файла оставляет документ без изменений.
package toolbar

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/aisa-it/aipress/internal/aipress/editor"
	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
	"github.com/aisa-it/aipress/internal/aipress/editor/plugins"
	policy "github.com/aisa-it/aipress/internal/aipress/redactor-policy"
)

var (
	ErrInvalidLink      = errors.New("invalid link url")
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrEmptySelection   = errors.New("empty selection")
	ErrUnknownCommand   = errors.New("unknown toolbar command")
)

// Command команда панели форматирования. Реализации перечислены в этом пакете.
type Command interface {
	command()
}

// Bold ставит марку strong на выделение.
type Bold struct{}

// Italic ставит марку em на выделение.
type Italic struct{}

// Link ставит ссылку на выделение. При пустом выделении вставляется сам адрес.
type Link struct {
	URL string
}

// Image вставляет изображение из выбранного файла в начало выделения как data URL.
type Image struct {
	Name   string
	Type   string
	Source io.Reader
}

// MarkdownToggle включает и выключает марку code на выделении.
type MarkdownToggle struct{}

func (Bold) command()           {}
func (Italic) command()         {}
func (Link) command()           {}
func (Image) command()          {}
func (MarkdownToggle) command() {}

// Toolbar панель форматирования, привязанная к оболочке редактора.
type Toolbar struct {
	shell *editor.Shell

	mu     sync.RWMutex
	active []string
}

// New создаёт панель и подписывает её на изменения состояния.
func New(sh *editor.Shell) *Toolbar {
	tb := &Toolbar{shell: sh}
	tb.refresh(sh.State())
	sh.OnChange(func(ch editor.Change) { tb.refresh(ch.State) })
	return tb
}

func (tb *Toolbar) refresh(st *editor.State) {
	var types []string
	for _, m := range st.ActiveMarks() {
		types = append(types, m.Type)
	}
	slices.Sort(types)
	tb.mu.Lock()
	tb.active = types
	tb.mu.Unlock()
}

// Active сообщает, активна ли марка типа markType в текущем выделении.
func (tb *Toolbar) Active(markType string) bool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return slices.Contains(tb.active, markType)
}

// ActiveMarks типы активных марок в алфавитном порядке.
func (tb *Toolbar) ActiveMarks() []string {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return slices.Clone(tb.active)
}

// Dispatch применяет команду к текущему состоянию.
func (tb *Toolbar) Dispatch(cmd Command) error {
	// файл читается до захвата оболочки
	if img, ok := cmd.(Image); ok {
		src, err := readDataURL(img)
		if err != nil {
			slog.Warn("Toolbar image fail", "file", img.Name, "err", err)
			return err
		}
		_, err = tb.shell.Update(func(st *editor.State) (*editor.Transaction, error) {
			return insertImage(st, img.Name, src)
		})
		return err
	}

	_, err := tb.shell.Update(func(st *editor.State) (*editor.Transaction, error) {
		return Transaction(st, cmd)
	})
	if err != nil {
		slog.Debug("Toolbar command rejected", "command", fmt.Sprintf("%T", cmd), "err", err)
	}
	return err
}

// Transaction строит транзакцию команды для состояния st.
func Transaction(st *editor.State, cmd Command) (*editor.Transaction, error) {
	sel := st.Selection
	switch c := cmd.(type) {
	case Bold:
		return st.Tr().AddMark(sel.From(), sel.To(), edtypes.Mark{Type: edtypes.StrongMark}).SetMeta(editor.MetaOrigin, "toolbar"), nil
	case Italic:
		return st.Tr().AddMark(sel.From(), sel.To(), edtypes.Mark{Type: edtypes.EmMark}).SetMeta(editor.MetaOrigin, "toolbar"), nil
	case Link:
		url := strings.TrimSpace(c.URL)
		if !policy.ValidLinkHref(url) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidLink, c.URL)
		}
		return plugins.LinkTransaction(st, url), nil
	case Image:
		src, err := readDataURL(c)
		if err != nil {
			return nil, err
		}
		return insertImage(st, c.Name, src)
	case MarkdownToggle:
		if sel.Empty() {
			return nil, ErrEmptySelection
		}
		tr := st.Tr().SetMeta(editor.MetaOrigin, "toolbar")
		if coveredBy(st.Doc, sel.From(), sel.To(), edtypes.CodeMark) {
			return tr.RemoveMark(sel.From(), sel.To(), edtypes.CodeMark), nil
		}
		return tr.AddMark(sel.From(), sel.To(), edtypes.Mark{Type: edtypes.CodeMark}), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
}

func insertImage(st *editor.State, name, src string) (*editor.Transaction, error) {
	attrs := edtypes.Attrs{"src": src}
	if name != "" {
		attrs["alt"] = name
	}
	img, err := st.Schema.Node(edtypes.ImageType, attrs)
	if err != nil {
		return nil, err
	}
	return st.Tr().Insert(st.Selection.From(), img).SetMeta(editor.MetaOrigin, "toolbar"), nil
}

func readDataURL(img Image) (string, error) {
	if !plugins.IsEditorImage(img.Type) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, img.Type)
	}
	if img.Source == nil {
		return "", fmt.Errorf("read image %q: no source", img.Name)
	}
	data, err := io.ReadAll(img.Source)
	if err != nil {
		return "", fmt.Errorf("read image %q: %w", img.Name, err)
	}
	return "data:" + strings.ToLower(img.Type) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// coveredBy сообщает, что весь текст диапазона несёт марку markType.
func coveredBy(doc *edtypes.Node, from, to int, markType string) bool {
	covered, seen := true, false
	doc.NodesBetween(from, to, func(node *edtypes.Node, _ int) bool {
		if node.IsText() {
			seen = true
			covered = covered && edtypes.HasMark(node.Marks, markType)
		}
		return covered
	})
	return seen && covered
}
