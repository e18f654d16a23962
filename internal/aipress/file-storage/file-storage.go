// Пакет filestorage хранит файлы медиатеки: оригиналы загрузок и их миниатюры.
//
// Основные возможности:
//   - Общий интерфейс FileStorage для локального каталога и Minio (S3).
//   - Имена объектов строятся из идентификатора медиа: "<id>" и "<id>-thumb".
//   - Повторные попытки записи в Minio с ожиданием между ними.
//   - Обработчик tus для возобновляемой загрузки видео поверх выбранного хранилища.
//   - Перенос объектов в служебные каталоги (например, "unknown/") для очистки.
package filestorage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/labstack/echo/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	expslog "golang.org/x/exp/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/tus/tusd/v2/pkg/filelocker"
	"github.com/tus/tusd/v2/pkg/filestore"
	"github.com/tus/tusd/v2/pkg/s3store"

	tusd "github.com/tus/tusd/v2/pkg/handler"

	"github.com/aisa-it/aipress/internal/aipress/config"
)

const (
	UploadTries = 5

	ThumbSuffix = "-thumb"
	// метаданные незавершённой загрузки tus
	TUSInfoSuffix = ".info"
)

var (
	ErrNotFound    = errors.New("object not found")
	ErrInvalidName = errors.New("invalid object name")
)

// Задержка между попытками записи в Minio.
var uploadRetryDelay = 5 * time.Second

// Metadata теги объекта в хранилище.
type Metadata struct {
	MediaId string
	Kind    string
}

type FileInfo struct {
	Name        string
	Size        int64
	ContentType string
	CreatedAt   time.Time
}

func (m Metadata) GetMap() map[string]string {
	meta := make(map[string]string)
	if m.MediaId != "" {
		meta["mediaId"] = m.MediaId
	}
	if m.Kind != "" {
		meta["kind"] = m.Kind
	}
	return meta
}

// ObjectName имя оригинала медиа в хранилище.
func ObjectName(id uuid.UUID) string {
	return id.String()
}

// ThumbName имя миниатюры медиа в хранилище.
func ThumbName(id uuid.UUID) string {
	return id.String() + ThumbSuffix
}

// MediaIDFromName извлекает идентификатор медиа из имени объекта корня хранилища.
// Для объектов во вложенных каталогах и посторонних имён возвращает false.
func MediaIDFromName(name string) (uuid.UUID, bool) {
	if strings.Contains(name, "/") {
		return uuid.Nil, false
	}
	name = strings.TrimSuffix(name, TUSInfoSuffix)
	id, err := uuid.FromString(strings.TrimSuffix(name, ThumbSuffix))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

type FileStorage interface {
	GetTUSHandler(
		cfg *config.Config,
		baseUrl string,
		uploadValidator func(hook tusd.HookEvent) (tusd.HTTPResponse, tusd.FileInfoChanges, error),
		postUploadHook func(event tusd.HookEvent)) (echo.HandlerFunc, error)
	SaveReader(ctx context.Context, reader io.Reader, fileSize int64, name string, contentType string, metadata *Metadata) error
	LoadReader(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
	Exist(ctx context.Context, name string) (bool, error)
	ListRoot(ctx context.Context, fn func(FileInfo) error) error
	Move(ctx context.Context, old string, new string) error
	GetFileInfo(ctx context.Context, name string) (*FileInfo, error)
}

func checkName(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.HasPrefix(name, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func newTUSHandler(composer *tusd.StoreComposer,
	cfg *config.Config,
	baseUrl string,
	uploadValidator func(hook tusd.HookEvent) (tusd.HTTPResponse, tusd.FileInfoChanges, error),
	postUploadHook func(event tusd.HookEvent),
) (echo.HandlerFunc, error) {
	basePath, err := url.Parse(baseUrl)
	if err != nil {
		return nil, err
	}
	handler, err := tusd.NewHandler(tusd.Config{
		BasePath:                cfg.WebURL.ResolveReference(basePath).String(),
		StoreComposer:           composer,
		DisableDownload:         true,
		NotifyCompleteUploads:   true,
		PreUploadCreateCallback: uploadValidator,
		Logger:                  expslog.New(expslog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return nil, err
	}

	go func() {
		for event := range handler.CompleteUploads {
			postUploadHook(event)
		}
	}()

	return echo.WrapHandler(http.StripPrefix(basePath.String(), handler)), nil
}

// LocalStorage хранилище в каталоге на диске.
type LocalStorage struct {
	rootDir string
}

func NewLocalStorage(rootPath string) (*LocalStorage, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, err
	}
	return &LocalStorage{rootPath}, nil
}

func (s *LocalStorage) path(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.rootDir, filepath.FromSlash(name)), nil
}

func (s *LocalStorage) GetTUSHandler(cfg *config.Config, baseUrl string, uploadValidator func(hook tusd.HookEvent) (tusd.HTTPResponse, tusd.FileInfoChanges, error),
	postUploadHook func(event tusd.HookEvent)) (echo.HandlerFunc, error) {
	dir := filepath.Join(s.rootDir, "tus")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	composer := tusd.NewStoreComposer()
	filestore.New(dir).UseIn(composer)
	filelocker.New(dir).UseIn(composer)
	return newTUSHandler(composer, cfg, baseUrl, uploadValidator, postUploadHook)
}

func (s *LocalStorage) SaveReader(ctx context.Context, reader io.Reader, fileSize int64, name string, contentType string, metadata *Metadata) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		os.Remove(p)
		return err
	}
	return f.Close()
}

func (s *LocalStorage) LoadReader(ctx context.Context, name string) (io.ReadCloser, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return f, err
}

func (s *LocalStorage) Delete(ctx context.Context, name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStorage) Exist(ctx context.Context, name string) (bool, error) {
	p, err := s.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *LocalStorage) ListRoot(ctx context.Context, fn func(FileInfo) error) error {
	return filepath.WalkDir(s.rootDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "tus" && filepath.Dir(p) == filepath.Clean(s.rootDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(s.rootDir, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(FileInfo{
			Name:      filepath.ToSlash(rel),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	})
}

func (s *LocalStorage) Move(ctx context.Context, old string, new string) error {
	from, err := s.path(old)
	if err != nil {
		return err
	}
	to, err := s.path(new)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	return os.Rename(from, to)
}

func (s *LocalStorage) GetFileInfo(ctx context.Context, name string) (*FileInfo, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	return &FileInfo{
		Name:        name,
		Size:        stat.Size(),
		ContentType: http.DetectContentType(head[:n]),
		CreatedAt:   stat.ModTime(),
	}, nil
}

// MinioStorage хранилище в бакете Minio (S3).
type MinioStorage struct {
	client     *minio.Client
	s3client   *s3.Client
	bucketName string
}

func (s *MinioStorage) GetTUSHandler(
	cfg *config.Config,
	baseUrl string,
	uploadValidator func(hook tusd.HookEvent) (tusd.HTTPResponse, tusd.FileInfoChanges, error),
	postUploadHook func(event tusd.HookEvent),
) (echo.HandlerFunc, error) {
	store := s3store.New(s.bucketName, s.s3client)
	composer := tusd.NewStoreComposer()
	store.UseIn(composer)
	return newTUSHandler(composer, cfg, baseUrl, uploadValidator, postUploadHook)
}

func (s *MinioStorage) SaveReader(ctx context.Context, reader io.Reader, fileSize int64, name string, contentType string, metadata *Metadata) error {
	if err := checkName(name); err != nil {
		return err
	}
	putOptions := minio.PutObjectOptions{ContentType: contentType}
	if metadata != nil {
		putOptions.UserTags = metadata.GetMap()
	}

	// повтор возможен только для перематываемого источника
	seeker, canRetry := reader.(io.Seeker)
	tries := 1
	if canRetry {
		tries = UploadTries
	}

	var err error
	for i := range tries {
		if i > 0 {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return err
			}
		}
		_, err = s.client.PutObject(ctx, s.bucketName, name, reader, fileSize, putOptions)
		if err == nil {
			return nil
		}
		resp := minio.ToErrorResponse(err)
		slog.Error("Upload file to minio", "name", name, "try", i+1, "code", resp.StatusCode, "msg", resp.Message, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(uploadRetryDelay):
		}
	}
	return err
}

func (s *MinioStorage) LoadReader(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	return s.client.GetObject(ctx, s.bucketName, name, minio.GetObjectOptions{})
}

func (s *MinioStorage) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	return s.client.RemoveObject(ctx, s.bucketName, name, minio.RemoveObjectOptions{})
}

func (s *MinioStorage) Exist(ctx context.Context, name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	_, err := s.client.StatObject(ctx, s.bucketName, name, minio.StatObjectOptions{})
	if err != nil {
		errResponse := minio.ToErrorResponse(err)
		if errResponse.Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *MinioStorage) ListRoot(ctx context.Context, fn func(info FileInfo) error) error {
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return obj.Err
		}
		if err := fn(FileInfo{
			Name:        obj.Key,
			Size:        obj.Size,
			ContentType: obj.ContentType,
			CreatedAt:   obj.LastModified,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *MinioStorage) Move(ctx context.Context, old string, new string) error {
	if err := checkName(path.Clean(new)); err != nil {
		return err
	}
	if _, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{
			Bucket: s.bucketName,
			Object: new,
		},
		minio.CopySrcOptions{
			Bucket: s.bucketName,
			Object: old,
		},
	); err != nil {
		return err
	}
	return s.client.RemoveObject(ctx, s.bucketName, old, minio.RemoveObjectOptions{})
}

func (s *MinioStorage) GetFileInfo(ctx context.Context, name string) (*FileInfo, error) {
	stat, err := s.client.StatObject(ctx, s.bucketName, name, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}

	return &FileInfo{
		Name:        name,
		Size:        stat.Size,
		ContentType: stat.ContentType,
		CreatedAt:   stat.LastModified,
	}, nil
}

func NewMinioStorage(ctx context.Context, endpoint string, accessKeyID string, secretAccessKey string, region string, useSSL bool, bucketName string) (*MinioStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	s3cfg, err := s3config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	scheme := "http://"
	if useSSL {
		scheme = "https://"
	}
	if region == "" {
		region = "ru"
	}
	s3client := s3.NewFromConfig(s3cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(scheme + endpoint)
		o.Region = region
		o.UsePathStyle = true
	})

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, err
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &MinioStorage{client, s3client, bucketName}, nil
}

// New выбирает хранилище по конфигурации: Minio при заданном AWS_S3_ENDPOINT_URL, иначе каталог MEDIA_PATH.
func New(ctx context.Context, cfg *config.Config) (FileStorage, error) {
	if cfg.AWSEndpoint == "" {
		slog.Info("Use local file storage", "path", cfg.MediaPath)
		return NewLocalStorage(cfg.MediaPath)
	}
	endpoint := cfg.AWSEndpoint
	useSSL := strings.HasPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	return NewMinioStorage(ctx, endpoint, cfg.AWSAccessKey, cfg.AWSSecretKey, cfg.AWSRegion, useSSL, cfg.AWSBucketName)
}
