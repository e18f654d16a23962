package editor

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
)

// Plugin подключаемое расширение редактора. Возможности плагина определяются тем,
// какие из интерфейсов-обработчиков он реализует.
type Plugin interface {
	Name() string
}

// DropHandler обрабатывает перетаскивание файлов или текста в документ.
type DropHandler interface {
	HandleDrop(sh *Shell, ev DropEvent) bool
}

// PasteHandler обрабатывает вставку из буфера обмена.
type PasteHandler interface {
	HandlePaste(sh *Shell, ev PasteEvent) bool
}

// ClickHandler обрабатывает клик по позиции документа.
type ClickHandler interface {
	HandleClick(sh *Shell, ev ClickEvent) bool
}

// KeyDownHandler обрабатывает нажатие клавиш.
type KeyDownHandler interface {
	HandleKeyDown(sh *Shell, ev KeyEvent) bool
}

// AppendTransactioner получает применённые транзакции и может вернуть дополнительную,
// которая применяется следом в том же обновлении. nil означает, что добавлять нечего.
type AppendTransactioner interface {
	AppendTransaction(trs []*Transaction, oldState, newState *State) *Transaction
}

// File файл из буфера обмена или перетаскивания.
type File struct {
	Name string
	// MIME тип, заявленный источником.
	Type string
	Data []byte
}

// Reader содержимое файла.
func (f File) Reader() io.Reader { return bytes.NewReader(f.Data) }

// Size размер файла в байтах.
func (f File) Size() int64 { return int64(len(f.Data)) }

// Ext расширение имени файла в нижнем регистре, с точкой.
func (f File) Ext() string { return strings.ToLower(filepath.Ext(f.Name)) }

// DropEvent перетаскивание в позицию документа.
type DropEvent struct {
	Pos   int
	Files []File
	Text  string
}

// PasteEvent вставка из буфера обмена в текущее выделение.
type PasteEvent struct {
	Files []File
	Text  string
	HTML  string
}

// ClickEvent клик по позиции документа.
type ClickEvent struct {
	Pos int
}

// KeyEvent нажатие клавиши. Mod означает Ctrl или Cmd в зависимости от платформы.
type KeyEvent struct {
	Key   string
	Mod   bool
	Shift bool
	Alt   bool
}

// String запись сочетания в виде "Mod-Shift-k".
func (e KeyEvent) String() string {
	var parts []string
	if e.Mod {
		parts = append(parts, "Mod")
	}
	if e.Alt {
		parts = append(parts, "Alt")
	}
	if e.Shift {
		parts = append(parts, "Shift")
	}
	return strings.Join(append(parts, e.Key), "-")
}
