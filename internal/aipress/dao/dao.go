// DAO (Data Access Object) медиатеки: записи о загруженных файлах и операции над ними.
//
// Основные возможности:
//   - Модель MediaItem с идентификатором UUID.
//   - Создание, получение, постраничный список и удаление записей.
//   - Проверка существования набора идентификаторов одним запросом.
//   - Миграция схемы для Postgres и SQLite.
package dao

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

var ErrMediaNotFound = errors.New("media item not found")

// GenUUID генерирует уникальный идентификатор в формате UUID.
func GenUUID() uuid.UUID {
	u2, _ := uuid.NewV4()
	return u2
}

// MediaItem запись о загруженном файле.
type MediaItem struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	Name string `json:"name" gorm:"index"`
	// публичный адрес оригинала
	URL      string `json:"url"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	HasThumb bool   `json:"has_thumb"`
}

func (MediaItem) TableName() string { return "media_items" }

// Migrate создаёт или обновляет таблицы медиатеки.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&MediaItem{})
}

func CreateMediaItem(ctx context.Context, db *gorm.DB, item *MediaItem) error {
	if item.ID.IsNil() {
		item.ID = GenUUID()
	}
	return db.WithContext(ctx).Create(item).Error
}

// GetMediaItem возвращает запись по идентификатору или ErrMediaNotFound.
func GetMediaItem(ctx context.Context, db *gorm.DB, id uuid.UUID) (*MediaItem, error) {
	var item MediaItem
	err := db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMediaNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListMediaItems возвращает страницу записей, новые первыми, и общее количество.
func ListMediaItems(ctx context.Context, db *gorm.DB, offset, limit int) ([]MediaItem, int64, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&MediaItem{}).Count(&count).Error; err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	items := []MediaItem{}
	err := db.WithContext(ctx).
		Order("created_at desc, id").
		Offset(max(offset, 0)).
		Limit(limit).
		Find(&items).Error
	return items, count, err
}

// DeleteMediaItem удаляет запись. Отсутствие записи считается ошибкой ErrMediaNotFound.
func DeleteMediaItem(ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&MediaItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMediaNotFound
	}
	return nil
}

// ExistingMediaIDs возвращает подмножество ids, для которых есть записи.
func ExistingMediaIDs(ctx context.Context, db *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	found := make(map[uuid.UUID]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	var existing []uuid.UUID
	if err := db.WithContext(ctx).Model(&MediaItem{}).Where("id in ?", ids).Pluck("id", &existing).Error; err != nil {
		return nil, err
	}
	for _, id := range existing {
		found[id] = true
	}
	return found, nil
}
