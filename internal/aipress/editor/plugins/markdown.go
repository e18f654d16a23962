package plugins

import (
	"bytes"
	"log/slog"

	"github.com/aisa-it/aipress/internal/aipress/editor"
	"github.com/aisa-it/aipress/internal/aipress/editor/markdown"
)

// MarkdownPlugin разбирает вставленный простой текст и перетащенные .md файлы как Markdown
// и заменяет ими выделение.
type MarkdownPlugin struct {
	// OnFrontMatter получает заголовок каждого перетащенного файла, например чтобы заполнить название поста.
	OnFrontMatter func(fm markdown.FrontMatter)
}

func (p *MarkdownPlugin) Name() string { return "markdown" }

// IsMarkdownFile сообщает, что файл нужно разбирать как Markdown.
func IsMarkdownFile(f editor.File) bool {
	switch f.Ext() {
	case ".md", ".markdown":
		return true
	}
	return f.Type == "text/markdown"
}

// HandlePaste обрабатывает вставку без HTML: HTML разбирается оболочкой.
func (p *MarkdownPlugin) HandlePaste(sh *editor.Shell, ev editor.PasteEvent) bool {
	if ev.HTML != "" || ev.Text == "" || len(ev.Files) > 0 {
		return false
	}
	return p.replace(sh, []byte(ev.Text), -1)
}

// HandleDrop вставляет содержимое .md файлов в позицию перетаскивания.
func (p *MarkdownPlugin) HandleDrop(sh *editor.Shell, ev editor.DropEvent) bool {
	var src [][]byte
	for _, f := range ev.Files {
		if !IsMarkdownFile(f) {
			continue
		}
		fm, body, err := markdown.SplitFrontMatter(f.Data)
		if err != nil {
			slog.Warn("Skip markdown file", "file", f.Name, "err", err)
			continue
		}
		if p.OnFrontMatter != nil {
			p.OnFrontMatter(fm)
		}
		src = append(src, body)
	}
	if len(src) == 0 {
		return false
	}
	return p.replace(sh, bytes.Join(src, []byte("\n\n")), ev.Pos)
}

// replace заменяет выделение разобранным фрагментом. pos >= 0 сначала переносит курсор.
func (p *MarkdownPlugin) replace(sh *editor.Shell, src []byte, pos int) bool {
	_, err := sh.Update(func(st *editor.State) (*editor.Transaction, error) {
		slice, err := markdown.Parse(src, st.Schema)
		if err != nil {
			return nil, err
		}
		if slice.IsEmpty() {
			return nil, nil
		}
		tr := st.Tr().SetMeta(editor.MetaOrigin, p.Name())
		if pos >= 0 {
			tr.SetSelection(editor.Cursor(pos))
		}
		return tr.ReplaceSelection(slice), nil
	})
	if err != nil {
		slog.Warn("Insert markdown fail", "err", err)
		return false
	}
	return true
}
