// Пакет plugins содержит плагины редактора публикаций.
//
// Основные возможности:
//   - ImagePlugin: загрузка перетащенных и вставленных изображений и вставка узла image после загрузки.
//   - LinkPlugin: переход по ссылке только для http/https, Mod-k для добавления ссылки, вычистка небезопасных href.
//   - MarkdownPlugin: вставка простого текста и перетаскивание .md файлов как Markdown.
package plugins

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aisa-it/aipress/internal/aipress/editor"
	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
)

var imageMimeRe = regexp.MustCompile(`^image/(jpeg|png|gif|webp)$`)

// IsEditorImage сообщает, можно ли вставить файл такого типа в документ как изображение.
func IsEditorImage(contentType string) bool {
	return imageMimeRe.MatchString(strings.ToLower(contentType))
}

// Uploader внешнее хранилище медиа. Возвращает адрес для атрибута src и идентификатор Media Item.
type Uploader interface {
	UploadImage(ctx context.Context, file editor.File) (src string, mediaID string, err error)
}

// ImagePlugin загружает изображения асинхронно. Узел вставляется только после успешной загрузки
// в отслеживаемую позицию, которая сдвигается вместе с правками, сделанными за время загрузки.
// Неудачная загрузка логируется и не мешает остальным файлам пакета.
type ImagePlugin struct {
	Uploader Uploader
	// Concurrency число одновременных загрузок. 0 без ограничения.
	Concurrency int
	// Timeout ограничение на одну загрузку. 0 без ограничения.
	Timeout time.Duration
	// OnError вызывается для каждой неудачной загрузки, например чтобы показать уведомление.
	OnError func(file editor.File, err error)

	pending sync.WaitGroup
}

func (p *ImagePlugin) Name() string { return "image" }

// HandleDrop загружает изображения и вставляет их в позицию перетаскивания.
// Если среди файлов есть не изображения, событие остаётся необработанным и достаётся следующим плагинам.
func (p *ImagePlugin) HandleDrop(sh *editor.Shell, ev editor.DropEvent) bool {
	started := p.start(sh, ev.Files, ev.Pos)
	return started && onlyImages(ev.Files)
}

func onlyImages(files []editor.File) bool {
	for _, f := range files {
		if !IsEditorImage(f.Type) {
			return false
		}
	}
	return true
}

// HandlePaste загружает изображения и вставляет их в начало выделения.
func (p *ImagePlugin) HandlePaste(sh *editor.Shell, ev editor.PasteEvent) bool {
	return p.start(sh, ev.Files, sh.State().Selection.From())
}

// Wait дожидается завершения всех начатых загрузок и вставок.
func (p *ImagePlugin) Wait() {
	p.pending.Wait()
}

func (p *ImagePlugin) start(sh *editor.Shell, files []editor.File, pos int) bool {
	var images []editor.File
	for _, f := range files {
		if !IsEditorImage(f.Type) {
			slog.Debug("Skip non-image file", "file", f.Name, "type", f.Type)
			continue
		}
		images = append(images, f)
	}
	if len(images) == 0 || p.Uploader == nil {
		return false
	}

	targets := make([]*editor.Tracked, len(images))
	for i := range images {
		targets[i] = sh.Track(pos, 1)
	}

	p.pending.Add(1)
	err := sh.Go(func(ctx context.Context) {
		defer p.pending.Done()
		var g errgroup.Group
		if p.Concurrency > 0 {
			g.SetLimit(p.Concurrency)
		}
		for i, f := range images {
			g.Go(func() error {
				defer targets[i].Release()
				p.uploadOne(ctx, sh, f, targets[i])
				return nil
			})
		}
		g.Wait()
	})
	if err != nil {
		p.pending.Done()
		for _, t := range targets {
			t.Release()
		}
		slog.Warn("Image upload not started", "err", err)
		return false
	}
	return true
}

func (p *ImagePlugin) uploadOne(ctx context.Context, sh *editor.Shell, f editor.File, target *editor.Tracked) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	src, mediaID, err := p.Uploader.UploadImage(ctx, f)
	if err != nil {
		slog.Error("Upload image fail", "file", f.Name, "err", err)
		p.reportError(f, err)
		return
	}

	_, err = sh.Update(func(st *editor.State) (*editor.Transaction, error) {
		attrs := edtypes.Attrs{"src": src, "alt": strings.TrimSuffix(f.Name, f.Ext())}
		if mediaID != "" {
			attrs["mediaId"] = mediaID
		}
		img, err := st.Schema.Node(edtypes.ImageType, attrs)
		if err != nil {
			return nil, err
		}
		return st.Tr().Insert(target.Pos(), img).SetMeta(editor.MetaOrigin, p.Name()), nil
	})
	if err != nil {
		slog.Error("Insert uploaded image", "file", f.Name, "mediaId", mediaID, "err", err)
		p.reportError(f, err)
	}
}

func (p *ImagePlugin) reportError(f editor.File, err error) {
	if p.OnError != nil {
		p.OnError(f, err)
	}
}
