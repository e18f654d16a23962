// Пакет localstore хранит публикации, черновики постов и токен доступа в локальном файле bbolt.
//
// Основные возможности:
//   - Ключи с префиксами pub_<id> и post_<id>, токен под отдельным ключом.
//   - Записи сериализуются в JSON, даты строками RFC 3339, содержимое постов в формате TipTap.
//   - Реализует apiclient.TokenStore.
package localstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/aisa-it/aipress/internal/aipress/dto"
)

const (
	publicationPrefix = "pub_"
	postPrefix        = "post_"
	defaultTokenKey   = "token"
)

var bucketName = []byte("aipress")

var (
	ErrNotFound = errors.New("record not found")
	ErrEmptyID  = errors.New("record id is empty")
)

type Store struct {
	db       *bolt.DB
	tokenKey []byte
}

// Open открывает или создаёт файл хранилища. tokenKey задаёт ключ токена, пустой означает "token".
func Open(path string, tokenKey string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open local store %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	if tokenKey == "" {
		tokenKey = defaultTokenKey
	}
	return &Store{db: db, tokenKey: []byte(tokenKey)}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), data)
	})
}

func (s *Store) get(key string, v any) error {
	return s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketName).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		// данные действительны только внутри транзакции
		return json.Unmarshal(data, v)
	})
}

func (s *Store) delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

func (s *Store) SavePublication(p *dto.Publication) error {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return ErrEmptyID
	}
	return s.put(publicationPrefix+p.ID, p)
}

func (s *Store) LoadPublication(id string) (*dto.Publication, error) {
	var p dto.Publication
	if err := s.get(publicationPrefix+id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SavePost сохраняет пост, в том числе незавершённый черновик.
func (s *Store) SavePost(p *dto.Post) error {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return ErrEmptyID
	}
	return s.put(postPrefix+p.ID, p)
}

func (s *Store) LoadPost(id string) (*dto.Post, error) {
	var p dto.Post
	if err := s.get(postPrefix+id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) DeletePost(id string) error {
	return s.delete(postPrefix + id)
}

// ListPosts возвращает посты в порядке ключей. Пустой publicationID означает все посты.
func (s *Store) ListPosts(publicationID string) ([]dto.Post, error) {
	var posts []dto.Post
	prefix := []byte(postPrefix)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var p dto.Post
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			if publicationID == "" || p.Publication.ID == publicationID {
				posts = append(posts, p)
			}
		}
		return nil
	})
	return posts, err
}

func (s *Store) Token() (string, error) {
	var token string
	err := s.db.View(func(tx *bolt.Tx) error {
		token = string(tx.Bucket(bucketName).Get(s.tokenKey))
		return nil
	})
	return token, err
}

func (s *Store) SetToken(token string) error {
	if token == "" {
		return s.ClearToken()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(s.tokenKey, []byte(token))
	})
}

func (s *Store) ClearToken() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete(s.tokenKey)
	})
}
