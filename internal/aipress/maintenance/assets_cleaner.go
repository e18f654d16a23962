// Пакет maintenance содержит фоновые задачи обслуживания медиатеки.
//
// Основные возможности:
//   - Перенос объектов хранилища без записи в медиатеке в каталог "unknown/".
//   - Перенос объектов с посторонними именами туда же.
package maintenance

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"

	"github.com/aisa-it/aipress/internal/aipress/dao"
	filestorage "github.com/aisa-it/aipress/internal/aipress/file-storage"
)

const (
	UnknownDir = "unknown/"

	// объекты моложе не трогаются: загрузка ещё может завершиться
	DefaultMinAge = 24 * time.Hour
)

type AssetsCleaner struct {
	db *gorm.DB
	si filestorage.FileStorage

	MinAge time.Duration
	now    func() time.Time
}

func NewAssetCleaner(db *gorm.DB, si filestorage.FileStorage) *AssetsCleaner {
	return &AssetsCleaner{db: db, si: si, MinAge: DefaultMinAge, now: time.Now}
}

// Run запуск очистки из расписания cron.
func (ac *AssetsCleaner) Run() {
	if _, err := ac.CleanAssets(context.Background()); err != nil {
		slog.Error("Scheduled assets cleaning fail", "err", err)
	}
}

// CleanAssets переносит осиротевшие объекты и возвращает их количество.
func (ac *AssetsCleaner) CleanAssets(ctx context.Context) (int, error) {
	slog.Info("Start assets cleaning")

	// сначала собираем имена, чтобы не менять хранилище во время обхода
	var names []string
	byMedia := map[uuid.UUID][]string{}
	fresh := map[uuid.UUID]bool{}
	border := ac.now().Add(-ac.MinAge)
	if err := ac.si.ListRoot(ctx, func(fi filestorage.FileInfo) error {
		if strings.HasPrefix(fi.Name, UnknownDir) {
			return nil
		}
		tooFresh := fi.CreatedAt.After(border)
		if id, ok := filestorage.MediaIDFromName(fi.Name); ok {
			byMedia[id] = append(byMedia[id], fi.Name)
			fresh[id] = fresh[id] || tooFresh
			return nil
		}
		if !tooFresh {
			names = append(names, fi.Name)
		}
		return nil
	}); err != nil {
		slog.Error("Clean assets fail", "err", err)
		return 0, err
	}

	ids := make([]uuid.UUID, 0, len(byMedia))
	for id := range byMedia {
		ids = append(ids, id)
	}
	found, err := dao.ExistingMediaIDs(ctx, ac.db, ids)
	if err != nil {
		slog.Error("Clean assets fail", "err", err)
		return 0, err
	}
	for id, objects := range byMedia {
		if !found[id] && !fresh[id] {
			names = append(names, objects...)
		}
	}

	var moved int
	for _, name := range names {
		if err := ac.si.Move(ctx, name, UnknownDir+name); err != nil {
			slog.Error("Move orphaned asset", "name", name, "err", err)
			continue
		}
		moved++
	}
	slog.Info("Finish assets cleaning", "moved", moved)
	return moved, nil
}
