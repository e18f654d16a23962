// Пакет studio собирает рабочее место автора: редактор с плагинами, панель форматирования,
// клиент API, локальное хранилище и уведомления.
//
// Основные возможности:
//   - Session владеет оболочкой редактора и освобождает её при закрытии на любом пути.
//   - Команды панели и ошибки загрузок превращаются в уведомления для пользователя.
//   - Save проверяет пост перед отправкой и кэширует созданный пост локально.
package studio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aisa-it/aipress/internal/aipress/apierrors"
	"github.com/aisa-it/aipress/internal/aipress/apiclient"
	"github.com/aisa-it/aipress/internal/aipress/dto"
	"github.com/aisa-it/aipress/internal/aipress/editor"
	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
	"github.com/aisa-it/aipress/internal/aipress/editor/markdown"
	"github.com/aisa-it/aipress/internal/aipress/editor/plugins"
	"github.com/aisa-it/aipress/internal/aipress/editor/toolbar"
	"github.com/aisa-it/aipress/internal/aipress/localstore"
	"github.com/aisa-it/aipress/internal/aipress/notice"
	"github.com/aisa-it/aipress/internal/aipress/validation"
)

type Options struct {
	Schema *edtypes.Schema
	// Doc начальный документ, например черновик из локального хранилища.
	Doc *edtypes.Node
	API *apiclient.Client
	// Uploader загрузчик картинок редактора. По умолчанию API.
	Uploader          plugins.Uploader
	Store             *localstore.Store
	Notices           *notice.Center
	Navigator         plugins.Navigator
	Prompter          plugins.Prompter
	View              editor.ViewResource
	UploadConcurrency int
	UploadTimeout     time.Duration
}

type Session struct {
	Shell   *editor.Shell
	Toolbar *toolbar.Toolbar

	api     *apiclient.Client
	store   *localstore.Store
	notices *notice.Center
	images  *plugins.ImagePlugin

	mu          sync.Mutex
	frontMatter markdown.FrontMatter
}

// Open монтирует редактор с плагинами картинок, ссылок и Markdown.
func Open(opts Options) (*Session, error) {
	schema := opts.Schema
	if schema == nil {
		schema = edtypes.DefaultSchema()
	}
	notices := opts.Notices
	if notices == nil {
		notices = notice.NewCenter(notice.DefaultTTL)
	}
	uploader := opts.Uploader
	if uploader == nil && opts.API != nil {
		uploader = opts.API
	}

	s := &Session{api: opts.API, store: opts.Store, notices: notices}
	s.images = &plugins.ImagePlugin{
		Uploader:    uploader,
		Concurrency: opts.UploadConcurrency,
		Timeout:     opts.UploadTimeout,
		OnError: func(f editor.File, err error) {
			s.notices.Push(notice.LevelError, f.Name+": "+userMessage(err))
		},
	}
	md := &plugins.MarkdownPlugin{OnFrontMatter: func(fm markdown.FrontMatter) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if fm.Title != "" {
			s.frontMatter = fm
		}
	}}
	link := &plugins.LinkPlugin{Navigator: opts.Navigator, Prompter: opts.Prompter}

	sh, err := editor.Mount(schema, editor.Options{
		Plugins: []editor.Plugin{s.images, link, md},
		View:    opts.View,
		Doc:     opts.Doc,
	})
	if err != nil {
		return nil, err
	}
	s.Shell = sh
	s.Toolbar = toolbar.New(sh)
	return s, nil
}

// Dispatch выполняет команду панели. Ошибка показывается уведомлением и возвращается.
func (s *Session) Dispatch(cmd toolbar.Command) error {
	err := s.Toolbar.Dispatch(cmd)
	if err != nil {
		s.notices.Push(notice.LevelWarning, userMessage(err))
	}
	return err
}

// FrontMatter заголовок последнего перетащенного Markdown файла.
func (s *Session) FrontMatter() markdown.FrontMatter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frontMatter
}

// WaitUploads дожидается загрузок картинок, запущенных к этому моменту.
func (s *Session) WaitUploads() {
	s.images.Wait()
}

func (s *Session) Notices() []notice.Notice {
	return s.notices.Active()
}

// Save записывает документ редактора в пост, проверяет его и отправляет в API.
// Некорректный пост не отправляется. Созданный пост сохраняется в локальном хранилище.
func (s *Session) Save(ctx context.Context, post *dto.Post) (*dto.Post, error) {
	if post == nil {
		post = &dto.Post{}
	}
	post.Content = dto.Document{Node: s.Shell.State().Doc}
	if post.Title == "" {
		post.Title = s.FrontMatter().Title
	}
	if err := validation.Record(post); err != nil {
		slog.Info("Post not saved, validation failed", "post", post.ID, "fields", validation.Fields(err), "err", err)
		derr := apierrors.ErrRecordValidateFail.WithFormattedMessage("post")
		s.notices.Push(notice.LevelError, derr.RuErr)
		return nil, errors.Join(derr, err)
	}
	if s.api == nil {
		return nil, errors.New("api client is not configured")
	}

	created, err := s.api.CreatePost(ctx, post)
	if err != nil {
		s.notices.Push(notice.LevelError, userMessage(err))
		return nil, err
	}
	if s.store != nil {
		if err := s.store.SavePost(created); err != nil {
			slog.Warn("Cache created post", "post", created.ID, "err", err)
		}
	}
	s.notices.Push(notice.LevelInfo, "Пост сохранён")
	return created, nil
}

// SaveDraft сохраняет документ в локальное хранилище без проверки и отправки.
func (s *Session) SaveDraft(post *dto.Post) error {
	if s.store == nil {
		return errors.New("local store is not configured")
	}
	draft := *post
	draft.Content = dto.Document{Node: s.Shell.State().Doc}
	return s.store.SavePost(&draft)
}

// Close освобождает редактор и останавливает таймеры уведомлений. Повторный вызов безопасен.
func (s *Session) Close() error {
	err := s.Shell.Close()
	s.notices.Close()
	return err
}

// userMessage текст уведомления для ошибки.
func userMessage(err error) string {
	var apiErr *apiclient.Error
	switch {
	case errors.As(err, &apiErr):
		switch apiErr.Kind {
		case apiclient.KindNetwork:
			return apierrors.ErrNetwork.RuErr
		case apiclient.KindUnauthorized:
			return apierrors.ErrAccessTokenExpired.RuErr
		case apiclient.KindForbidden:
			return apierrors.ErrForbidden.RuErr
		case apiclient.KindRateLimited:
			return apierrors.ErrTooManyRequests.RuErr
		}
		return apierrors.ErrGeneric.RuErr
	case errors.Is(err, apiclient.ErrInvalidResponse):
		return apierrors.ErrInvalidResponse.RuErr
	case errors.Is(err, apiclient.ErrInvalidPayload):
		return apierrors.ErrRequestMalformed.RuErr
	case errors.Is(err, toolbar.ErrInvalidLink):
		return "Ссылка должна начинаться с http:// или https://"
	case errors.Is(err, toolbar.ErrUnsupportedImage):
		return "Этот тип изображения не поддерживается"
	case errors.Is(err, toolbar.ErrEmptySelection):
		return "Выделите текст"
	}
	return apierrors.UserMessage(err)
}
