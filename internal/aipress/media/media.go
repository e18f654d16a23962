// Пакет media реализует медиатеку: приём файлов, миниатюры, выдачу и удаление.
//
// Основные возможности:
//   - Загрузка файлов из разрешённого набора типов с ограничением размера.
//   - Миниатюры для растровых изображений (jpeg, png) и копия для gif.
//   - Загрузка изображений из редактора, включая webp (реализует plugins.Uploader).
//   - Возобновляемая загрузка видео через tus.
//   - Отчёт о картинках документа, ссылающихся на удалённые медиа.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"mime"
	"path"
	"slices"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/labstack/echo/v4"
	"github.com/nfnt/resize"
	"github.com/prometheus/client_golang/prometheus"
	tusd "github.com/tus/tusd/v2/pkg/handler"
	"gorm.io/gorm"

	"github.com/aisa-it/aipress/internal/aipress/apierrors"
	"github.com/aisa-it/aipress/internal/aipress/config"
	"github.com/aisa-it/aipress/internal/aipress/dao"
	"github.com/aisa-it/aipress/internal/aipress/editor"
	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
	"github.com/aisa-it/aipress/internal/aipress/editor/plugins"
	filestorage "github.com/aisa-it/aipress/internal/aipress/file-storage"
)

const ThumbSize = 512

// Типы, принимаемые общей загрузкой.
var UploadTypes = []string{"image/jpeg", "image/png", "image/gif", "video/mp4"}

var uploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "aipress",
	Name:      "media_uploads_total",
	Help:      "Media uploads by content type and result.",
}, []string{"type", "result"})

// RegisterMetrics регистрирует счётчики медиатеки.
func RegisterMetrics(reg prometheus.Registerer) error {
	return reg.Register(uploadsTotal)
}

type Service struct {
	db      *gorm.DB
	storage filestorage.FileStorage
	baseURL string
	maxSize int64
}

func NewService(db *gorm.DB, storage filestorage.FileStorage, cfg *config.Config) *Service {
	return &Service{
		db:      db,
		storage: storage,
		baseURL: strings.TrimSuffix(cfg.WebURL.String(), "/"),
		maxSize: cfg.MediaMaxSize(),
	}
}

// FileURL публичный адрес содержимого медиа.
func (s *Service) FileURL(id uuid.UUID) string {
	return s.baseURL + "/api/media/" + id.String() + "/file/"
}

func normalizeType(contentType string) string {
	t, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return t
}

func baseName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// Upload сохраняет файл общей загрузки. size может быть -1, если длина заранее неизвестна.
func (s *Service) Upload(ctx context.Context, name, contentType string, size int64, r io.Reader) (*dao.MediaItem, error) {
	t := normalizeType(contentType)
	if !slices.Contains(UploadTypes, t) {
		uploadsTotal.WithLabelValues(t, "rejected").Inc()
		return nil, apierrors.ErrMediaTypeNotAllowed.WithFormattedMessage(t)
	}
	return s.store(ctx, name, t, size, r)
}

// UploadImage загружает изображение, вставленное или перетащенное в редактор.
func (s *Service) UploadImage(ctx context.Context, f editor.File) (string, string, error) {
	t := normalizeType(f.Type)
	if !plugins.IsEditorImage(t) {
		uploadsTotal.WithLabelValues(t, "rejected").Inc()
		return "", "", apierrors.ErrMediaTypeNotAllowed.WithFormattedMessage(t)
	}
	item, err := s.store(ctx, f.Name, t, f.Size(), f.Reader())
	if err != nil {
		return "", "", err
	}
	return item.URL, item.ID.String(), nil
}

func (s *Service) tooLarge() apierrors.DefinedError {
	return apierrors.ErrMediaTooLarge.WithFormattedMessage(fmt.Sprintf("%d MB", s.maxSize>>20))
}

func (s *Service) store(ctx context.Context, name, contentType string, size int64, r io.Reader) (*dao.MediaItem, error) {
	if size > s.maxSize {
		uploadsTotal.WithLabelValues(contentType, "rejected").Inc()
		return nil, s.tooLarge()
	}
	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload %q: %w", name, err)
	}
	if int64(len(data)) > s.maxSize {
		uploadsTotal.WithLabelValues(contentType, "rejected").Inc()
		return nil, s.tooLarge()
	}

	item := &dao.MediaItem{
		ID:   dao.GenUUID(),
		Name: baseName(name),
		Type: contentType,
		Size: int64(len(data)),
	}
	item.URL = s.FileURL(item.ID)

	meta := &filestorage.Metadata{MediaId: item.ID.String(), Kind: "original"}
	if err := s.storage.SaveReader(ctx, bytes.NewReader(data), item.Size, filestorage.ObjectName(item.ID), contentType, meta); err != nil {
		slog.Error("Save media to storage", "name", item.Name, "err", err)
		uploadsTotal.WithLabelValues(contentType, "failed").Inc()
		return nil, apierrors.ErrMediaUploadFailed
	}

	if strings.HasPrefix(contentType, "image/") && contentType != "image/webp" {
		if err := s.saveThumbnail(ctx, item, data); err != nil {
			slog.Warn("Media thumbnail skipped", "id", item.ID, "type", contentType, "err", err)
		} else {
			item.HasThumb = true
		}
	}

	if err := dao.CreateMediaItem(ctx, s.db, item); err != nil {
		s.removeObjects(ctx, item)
		uploadsTotal.WithLabelValues(contentType, "failed").Inc()
		return nil, fmt.Errorf("create media item: %w", err)
	}
	uploadsTotal.WithLabelValues(contentType, "ok").Inc()
	slog.Info("Media uploaded", "id", item.ID, "name", item.Name, "type", contentType, "size", item.Size)
	return item, nil
}

func (s *Service) saveThumbnail(ctx context.Context, item *dao.MediaItem, data []byte) error {
	thumb, thumbType, err := imageThumbnail(bytes.NewReader(data), item.Type)
	if err != nil {
		return err
	}
	meta := &filestorage.Metadata{MediaId: item.ID.String(), Kind: "thumb"}
	return s.storage.SaveReader(ctx, bytes.NewReader(thumb), int64(len(thumb)), filestorage.ThumbName(item.ID), thumbType, meta)
}

func imageThumbnail(r io.Reader, contentType string) ([]byte, string, error) {
	buf := new(bytes.Buffer)
	if contentType == "image/gif" {
		// анимация сохраняется как есть
		_, err := io.Copy(buf, r)
		return buf.Bytes(), "image/gif", err
	}
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, "", err
	}
	thmb := resize.Thumbnail(ThumbSize, ThumbSize, img, resize.Lanczos3)
	if err := jpeg.Encode(buf, thmb, &jpeg.Options{Quality: 80}); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "image/jpeg", nil
}

func mediaErr(err error) error {
	if errors.Is(err, dao.ErrMediaNotFound) {
		return apierrors.ErrMediaNotFound
	}
	return err
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*dao.MediaItem, error) {
	item, err := dao.GetMediaItem(ctx, s.db, id)
	return item, mediaErr(err)
}

func (s *Service) List(ctx context.Context, offset, limit int) ([]dao.MediaItem, int64, error) {
	return dao.ListMediaItems(ctx, s.db, offset, limit)
}

// Open открывает содержимое медиа или его миниатюры.
func (s *Service) Open(ctx context.Context, id uuid.UUID, thumb bool) (io.ReadCloser, string, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	name, contentType := filestorage.ObjectName(id), item.Type
	if thumb && item.HasThumb {
		name = filestorage.ThumbName(id)
		if item.Type != "image/gif" {
			contentType = "image/jpeg"
		}
	}
	rc, err := s.storage.LoadReader(ctx, name)
	if errors.Is(err, filestorage.ErrNotFound) {
		return nil, "", apierrors.ErrMediaNotFound
	}
	return rc, contentType, err
}

// Delete удаляет запись и объекты медиа. Документы, ссылающиеся на медиа, не изменяются.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := dao.DeleteMediaItem(ctx, s.db, id); err != nil {
		return mediaErr(err)
	}
	s.removeObjects(ctx, item)
	slog.Info("Media deleted", "id", id, "name", item.Name)
	return nil
}

// Объекты, которые не удалось удалить, позже перенесёт AssetsCleaner.
func (s *Service) removeObjects(ctx context.Context, item *dao.MediaItem) {
	names := []string{filestorage.ObjectName(item.ID)}
	if item.HasThumb {
		names = append(names, filestorage.ThumbName(item.ID))
	}
	for _, name := range names {
		if err := s.storage.Delete(ctx, name); err != nil {
			slog.Warn("Delete media object", "name", name, "err", err)
		}
	}
}

// DanglingImage картинка документа, чьё медиа не найдено.
type DanglingImage struct {
	Pos     int    `json:"pos"`
	MediaID string `json:"media_id"`
	Src     string `json:"src"`
}

// Dangling перечисляет картинки документа с атрибутом mediaId, для которых нет записи в медиатеке.
// Документ не изменяется.
func (s *Service) Dangling(ctx context.Context, doc *edtypes.Node) ([]DanglingImage, error) {
	var refs []DanglingImage
	var ids []uuid.UUID
	doc.Descendants(func(node *edtypes.Node, pos int, _ *edtypes.Node) bool {
		if node.Type == edtypes.ImageType && node.Attr("mediaId") != "" {
			refs = append(refs, DanglingImage{Pos: pos, MediaID: node.Attr("mediaId"), Src: node.Attr("src")})
			if id, err := uuid.FromString(node.Attr("mediaId")); err == nil {
				ids = append(ids, id)
			}
		}
		return true
	})
	found, err := dao.ExistingMediaIDs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	var dangling []DanglingImage
	for _, ref := range refs {
		id, err := uuid.FromString(ref.MediaID)
		if err != nil || !found[id] {
			dangling = append(dangling, ref)
		}
	}
	return dangling, nil
}

// TUSHandler обработчик возобновляемой загрузки видео.
func (s *Service) TUSHandler(cfg *config.Config, baseURL string) (echo.HandlerFunc, error) {
	return s.storage.GetTUSHandler(cfg, baseURL, s.validateTUS, s.completeTUS)
}

func (s *Service) validateTUS(hook tusd.HookEvent) (tusd.HTTPResponse, tusd.FileInfoChanges, error) {
	t := normalizeType(hook.Upload.MetaData["filetype"])
	if t != "video/mp4" {
		return tusd.HTTPResponse{}, tusd.FileInfoChanges{}, apierrors.ErrMediaTypeNotAllowed.WithFormattedMessage(t).TusdError()
	}
	if hook.Upload.Size > s.maxSize {
		return tusd.HTTPResponse{}, tusd.FileInfoChanges{}, s.tooLarge().TusdError()
	}
	return tusd.HTTPResponse{}, tusd.FileInfoChanges{ID: dao.GenUUID().String()}, nil
}

func (s *Service) completeTUS(event tusd.HookEvent) {
	ctx := context.Background()
	objectID, _, _ := strings.Cut(event.Upload.ID, "+")
	id, err := uuid.FromString(objectID)
	if err != nil {
		slog.Error("Tus upload with foreign id", "id", event.Upload.ID)
		return
	}
	if event.Upload.Storage["Type"] == "filestore" {
		if err := s.storage.Move(ctx, "tus/"+objectID, filestorage.ObjectName(id)); err != nil {
			slog.Error("Move tus upload", "id", id, "err", err)
			return
		}
		if err := s.storage.Delete(ctx, "tus/"+objectID+".info"); err != nil {
			slog.Warn("Delete tus info", "id", id, "err", err)
		}
	}
	item := &dao.MediaItem{
		ID:   id,
		Name: baseName(event.Upload.MetaData["filename"]),
		Type: "video/mp4",
		Size: event.Upload.Size,
		URL:  s.FileURL(id),
	}
	if err := dao.CreateMediaItem(ctx, s.db, item); err != nil {
		slog.Error("Create media item for tus upload", "id", id, "err", err)
		return
	}
	uploadsTotal.WithLabelValues(item.Type, "ok").Inc()
	slog.Info("Media uploaded", "id", id, "name", item.Name, "type", item.Type, "size", item.Size, "tus", true)
}
