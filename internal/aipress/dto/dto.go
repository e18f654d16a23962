// Пакет dto описывает записи предметной области, которыми обмениваются редактор, REST API
// публикаций и локальное хранилище.
//
// Основные возможности:
//   - Записи Post, Publication, Subscription, AuthUser и Metric с тегами JSON и правилами валидации.
//   - Даты сериализуются строками RFC 3339.
//   - Содержимое поста сериализуется в JSON формата TipTap.
package dto

import (
	"bytes"
	"time"

	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
	"github.com/aisa-it/aipress/internal/aipress/editor/tiptap"
)

var schema = edtypes.DefaultSchema()

// Document содержимое поста. Пустое значение сериализуется как null.
type Document struct {
	*edtypes.Node
}

func (d Document) MarshalJSON() ([]byte, error) {
	if d.Node == nil {
		return []byte("null"), nil
	}
	return tiptap.Serialize(d.Node)
}

func (d *Document) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		d.Node = nil
		return nil
	}
	doc, err := tiptap.ParseJSON(bytes.NewReader(b), schema)
	if err != nil {
		return err
	}
	d.Node = doc
	return nil
}

// PlainText текстовая проекция содержимого, пустая строка для пустого документа.
func (d Document) PlainText() string {
	if d.Node == nil {
		return ""
	}
	return d.Node.PlainText()
}

type Author struct {
	ID   string `json:"id" validate:"notblank"`
	Name string `json:"name"`
}

type PublicationRef struct {
	ID   string `json:"id" validate:"notblank"`
	Name string `json:"name"`
}

type Post struct {
	ID          string         `json:"id" validate:"notblank"`
	Title       string         `json:"title" validate:"notblank"`
	Content     Document       `json:"content" validate:"-"`
	Author      Author         `json:"author"`
	Publication PublicationRef `json:"publication"`
	Status      string         `json:"status,omitempty" validate:"omitempty,oneof=draft published archived"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

type Publication struct {
	ID      string `json:"id" validate:"notblank"`
	Name    string `json:"name" validate:"notblank"`
	Slug    string `json:"slug" validate:"slug"`
	OwnerID string `json:"ownerId" validate:"notblank"`
}

const (
	SubscriptionActive    = "active"
	SubscriptionInactive  = "inactive"
	SubscriptionCancelled = "cancelled"
)

type Subscription struct {
	ID            string    `json:"id" validate:"notblank"`
	UserID        string    `json:"userId" validate:"notblank"`
	PublicationID string    `json:"publicationId" validate:"notblank"`
	Status        string    `json:"status" validate:"oneof=active inactive cancelled"`
	StartDate     time.Time `json:"startDate" validate:"required"`
	EndDate       time.Time `json:"endDate" validate:"required,gtfield=StartDate"`
	Tier          string    `json:"tier,omitempty"`
	// идентификатор подписки у платёжного провайдера
	ExternalID string `json:"externalId,omitempty"`
}

type AuthUser struct {
	ID    string `json:"id" validate:"notblank"`
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"notblank"`
	Token string `json:"token"`
}

// Metric показатели вовлечённости по посту.
type Metric struct {
	PostID       string    `json:"postId" validate:"notblank"`
	Opens        int       `json:"opens" validate:"gte=0"`
	Clicks       int       `json:"clicks" validate:"gte=0,ltefield=Opens"`
	Unsubscribes int       `json:"unsubscribes" validate:"gte=0"`
	RecordedAt   time.Time `json:"recordedAt" validate:"required"`
}

// LoginRequest тело запроса входа.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"notblank"`
}

// LoginResponse ответ на вход: пользователь вместе с токеном доступа.
type LoginResponse struct {
	User  AuthUser `json:"user"`
	Token string   `json:"token"`
}

// MediaUpload ответ загрузки медиа.
type MediaUpload struct {
	ID   string `json:"id" validate:"notblank"`
	URL  string `json:"url" validate:"notblank"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Name string `json:"name"`
}
