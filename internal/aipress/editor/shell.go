package editor

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
)

const (
	DefaultHistoryLimit = 100
	// maxAppendPasses ограничивает цепочку appendTransaction, если плагины отвечают друг другу.
	maxAppendPasses = 8
)

// ViewResource нативный ресурс отображения. Захватывается при монтировании и освобождается
// при закрытии оболочки на любом пути, включая ошибки монтирования.
type ViewResource interface {
	Acquire() error
	Render(st *State)
	Release() error
}

type nopView struct{}

func (nopView) Acquire() error { return nil }
func (nopView) Render(*State)  {}
func (nopView) Release() error { return nil }

// Change уведомление наблюдателя после применения транзакции.
type Change struct {
	State     *State
	Text      string
	CharCount int
}

// Options параметры монтирования оболочки.
type Options struct {
	Plugins      []Plugin
	View         ViewResource
	HistoryLimit int
	// Doc начальный документ. Пустой документ схемы, если не задан.
	Doc *edtypes.Node
}

// Shell единственный владелец состояния редактора. Все изменения проходят через Apply или Update
// и применяются строго по очереди.
type Shell struct {
	mu    sync.Mutex
	state *State
	view  ViewResource

	undo         []*State
	redo         []*State
	historyLimit int

	observers []func(Change)
	tracked   map[*Tracked]struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	tasks     sync.WaitGroup
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// Mount создаёт состояние для схемы и захватывает ресурс отображения.
func Mount(schema *edtypes.Schema, opts Options) (sh *Shell, err error) {
	var st *State
	if opts.Doc != nil {
		st, err = NewState(schema, opts.Doc, opts.Plugins...)
		if err == nil {
			st = settleLoaded(st)
		}
	} else {
		st, err = Initialize(schema, opts.Plugins...)
	}
	if err != nil {
		return nil, err
	}

	view := opts.View
	if view == nil {
		view = nopView{}
	}
	if err := view.Acquire(); err != nil {
		return nil, err
	}

	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	sh = &Shell{
		state:        st,
		view:         view,
		historyLimit: limit,
		tracked:      map[*Tracked]struct{}{},
		ctx:          ctx,
		cancel:       cancel,
	}
	view.Render(st)
	return sh, nil
}

// Close отменяет фоновые задачи, дожидается их и освобождает ресурс отображения.
// Повторные вызовы возвращают результат первого.
func (sh *Shell) Close() error {
	sh.closeOnce.Do(func() {
		sh.mu.Lock()
		sh.closed = true
		sh.mu.Unlock()

		sh.cancel()
		sh.tasks.Wait()
		sh.closeErr = sh.view.Release()
		if sh.closeErr != nil {
			slog.Error("Release editor view", "err", sh.closeErr)
		}
	})
	return sh.closeErr
}

// State текущее состояние.
func (sh *Shell) State() *State {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.state
}

// OnChange регистрирует наблюдателя изменений.
func (sh *Shell) OnChange(f func(Change)) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.observers = append(sh.observers, f)
}

// Apply применяет транзакцию, построенную для текущего состояния. При отказе возвращается
// текущее состояние без изменений и причина.
func (sh *Shell) Apply(tr *Transaction) (*State, error) {
	sh.mu.Lock()
	st, changed, err := sh.applyLocked(tr)
	observers := sh.observers
	sh.mu.Unlock()

	if changed {
		notify(observers, st)
	}
	return st, err
}

// Update строит транзакцию от актуального состояния и сразу применяет её. fn вызывается под
// блокировкой оболочки и не должен обращаться к методам Shell. nil транзакция ничего не делает.
func (sh *Shell) Update(fn func(st *State) (*Transaction, error)) (*State, error) {
	sh.mu.Lock()
	if sh.closed {
		st := sh.state
		sh.mu.Unlock()
		return st, ErrShellClosed
	}
	tr, err := fn(sh.state)
	if err != nil || tr == nil {
		st := sh.state
		sh.mu.Unlock()
		return st, err
	}
	st, changed, err := sh.applyLocked(tr)
	observers := sh.observers
	sh.mu.Unlock()

	if changed {
		notify(observers, st)
	}
	return st, err
}

func (sh *Shell) applyLocked(tr *Transaction) (*State, bool, error) {
	if sh.closed {
		return sh.state, false, ErrShellClosed
	}
	old := sh.state
	next, err := old.Apply(tr)
	if err != nil {
		slog.Debug("Reject transaction", "origin", tr.Meta(MetaOrigin), "err", err)
		return old, false, err
	}

	trs, next := appendTransactions([]*Transaction{tr}, old, next)

	docChanged := false
	for _, t := range trs {
		docChanged = docChanged || t.DocChanged()
		for tp := range sh.tracked {
			tp.mapThrough(t)
		}
	}
	if docChanged && tr.Meta(MetaAddToHistory) != false {
		sh.undo = pushBounded(sh.undo, old, sh.historyLimit)
		sh.redo = nil
	}
	sh.state = next
	sh.view.Render(next)
	return next, true, nil
}

// appendTransactions даёт плагинам дополнить транзакции trs, пока они что-то меняют.
func appendTransactions(trs []*Transaction, old, next *State) ([]*Transaction, *State) {
	for pass := 0; pass < maxAppendPasses; pass++ {
		appended := false
		for _, p := range next.Plugins {
			at, ok := p.(AppendTransactioner)
			if !ok {
				continue
			}
			extra := at.AppendTransaction(trs, old, next)
			if extra == nil || (!extra.DocChanged() && !extra.SelectionSet()) {
				continue
			}
			st, err := next.Apply(extra)
			if err != nil {
				slog.Warn("Skip appended transaction", "plugin", p.Name(), "err", err)
				continue
			}
			trs = append(trs, extra)
			next = st
			appended = true
		}
		if !appended {
			break
		}
	}
	return trs, next
}

// settleLoaded прогоняет appendTransaction плагинов по загруженному документу, как после правки.
func settleLoaded(st *State) *State {
	load := st.Tr().SetMeta(MetaOrigin, "load").SetMeta(MetaLoaded, true)
	_, next := appendTransactions([]*Transaction{load}, st, st)
	return next
}

// Undo возвращает предыдущее состояние документа из истории.
func (sh *Shell) Undo() (*State, bool) {
	return sh.travel(&sh.undo, &sh.redo)
}

// Redo повторяет отменённое изменение.
func (sh *Shell) Redo() (*State, bool) {
	return sh.travel(&sh.redo, &sh.undo)
}

func (sh *Shell) travel(from, to *[]*State) (*State, bool) {
	sh.mu.Lock()
	if sh.closed || len(*from) == 0 {
		st := sh.state
		sh.mu.Unlock()
		return st, false
	}
	target := (*from)[len(*from)-1]
	*from = (*from)[:len(*from)-1]
	*to = pushBounded(*to, sh.state, sh.historyLimit)

	st := &State{Doc: target.Doc, Selection: target.Selection, Schema: sh.state.Schema, Plugins: sh.state.Plugins}
	sh.state = st
	for tp := range sh.tracked {
		tp.clamp(st.DocSize())
	}
	sh.view.Render(st)
	observers := sh.observers
	sh.mu.Unlock()

	notify(observers, st)
	return st, true
}

// CanUndo сообщает, есть ли изменения для отмены.
func (sh *Shell) CanUndo() bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return len(sh.undo) > 0
}

// Go запускает фоновую задачу, связанную с жизнью оболочки. Контекст задачи отменяется при Close,
// а Close дожидается её завершения.
func (sh *Shell) Go(task func(ctx context.Context)) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.closed {
		return ErrShellClosed
	}
	sh.tasks.Add(1)
	go func() {
		defer sh.tasks.Done()
		task(sh.ctx)
	}()
	return nil
}

// Track отслеживает позицию документа: она переносится через все последующие транзакции.
func (sh *Shell) Track(pos int, assoc int) *Tracked {
	t := &Tracked{pos: pos, assoc: assoc, shell: sh}
	sh.mu.Lock()
	sh.tracked[t] = struct{}{}
	sh.mu.Unlock()
	return t
}

// HandleDrop передаёт перетаскивание плагинам по порядку. Если ни один плагин не обработал событие,
// перетащенный текст вставляется в позицию.
func (sh *Shell) HandleDrop(ev DropEvent) bool {
	for _, p := range sh.State().Plugins {
		if h, ok := p.(DropHandler); ok && h.HandleDrop(sh, ev) {
			return true
		}
	}
	if ev.Text == "" {
		return false
	}
	_, err := sh.Update(func(st *State) (*Transaction, error) {
		slice := TextSlice(st.Schema, ev.Text)
		return st.Tr().ReplaceRange(ev.Pos, ev.Pos, slice).SetMeta(MetaOrigin, "drop"), nil
	})
	return err == nil
}

// HandlePaste передаёт вставку плагинам. По умолчанию HTML разбирается санитайзером,
// иначе текст вставляется по параграфу на строку.
func (sh *Shell) HandlePaste(ev PasteEvent) bool {
	for _, p := range sh.State().Plugins {
		if h, ok := p.(PasteHandler); ok && h.HandlePaste(sh, ev) {
			return true
		}
	}
	_, err := sh.Update(func(st *State) (*Transaction, error) {
		var slice edtypes.Slice
		switch {
		case ev.HTML != "":
			s, err := ParseHTML(st.Schema, ev.HTML)
			if err != nil {
				return nil, err
			}
			slice = s
		case ev.Text != "":
			slice = TextSlice(st.Schema, ev.Text)
		default:
			return nil, nil
		}
		return st.Tr().ReplaceSelection(slice).SetMeta(MetaOrigin, "paste"), nil
	})
	if err != nil {
		slog.Warn("Paste fail", "err", err)
		return false
	}
	return ev.HTML != "" || ev.Text != ""
}

// HandleClick передаёт клик плагинам, по умолчанию ставит курсор.
func (sh *Shell) HandleClick(ev ClickEvent) bool {
	for _, p := range sh.State().Plugins {
		if h, ok := p.(ClickHandler); ok && h.HandleClick(sh, ev) {
			return true
		}
	}
	_, err := sh.Update(func(st *State) (*Transaction, error) {
		return st.Tr().SetSelection(Cursor(ev.Pos)), nil
	})
	return err == nil
}

// HandleKeyDown передаёт нажатие плагинам. Mod-z и Mod-Shift-z управляют историей.
func (sh *Shell) HandleKeyDown(ev KeyEvent) bool {
	for _, p := range sh.State().Plugins {
		if h, ok := p.(KeyDownHandler); ok && h.HandleKeyDown(sh, ev) {
			return true
		}
	}
	switch ev.String() {
	case "Mod-z":
		_, ok := sh.Undo()
		return ok
	case "Mod-Shift-z", "Mod-y":
		_, ok := sh.Redo()
		return ok
	}
	return false
}

// Tracked позиция, переносимая через транзакции оболочки.
type Tracked struct {
	mu    sync.Mutex
	pos   int
	assoc int
	shell *Shell
}

// Pos текущее значение позиции.
func (t *Tracked) Pos() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pos
}

// Release прекращает отслеживание.
func (t *Tracked) Release() {
	t.shell.mu.Lock()
	delete(t.shell.tracked, t)
	t.shell.mu.Unlock()
}

func (t *Tracked) mapThrough(tr *Transaction) {
	t.mu.Lock()
	t.pos = tr.Map(t.pos, t.assoc)
	t.mu.Unlock()
}

func (t *Tracked) clamp(size int) {
	t.mu.Lock()
	t.pos = min(max(t.pos, 0), size)
	t.mu.Unlock()
}

func notify(observers []func(Change), st *State) {
	text := st.TextContent()
	ch := Change{State: st, Text: text, CharCount: st.Doc.CharCount()}
	for _, f := range observers {
		f(ch)
	}
}

func pushBounded(stack []*State, st *State, limit int) []*State {
	stack = append(stack, st)
	if len(stack) > limit {
		stack = append([]*State(nil), stack[len(stack)-limit:]...)
	}
	return stack
}

// IsRejected сообщает, что ошибка означает отклонённую транзакцию, а не сбой оболочки.
func IsRejected(err error) bool {
	return errors.Is(err, ErrSelectionOutOfRange) || errors.Is(err, ErrSchemaViolation) ||
		errors.Is(err, ErrStaleTransaction) || errors.Is(err, edtypes.ErrInvalidSlice)
}
