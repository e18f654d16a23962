package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/aisa-it/aipress/internal/aipress/dto"
	"github.com/aisa-it/aipress/internal/aipress/editor"
)

// ListPosts возвращает посты публикации.
func (c *Client) ListPosts(ctx context.Context, publicationID string) ([]dto.Post, error) {
	var posts []dto.Post
	path := "/posts?" + url.Values{"publicationId": {publicationID}}.Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &posts); err != nil {
		return nil, err
	}
	for i := range posts {
		if err := checkResponse(&posts[i]); err != nil {
			return nil, fmt.Errorf("post %d: %w", i, err)
		}
	}
	return posts, nil
}

// CreatePost отправляет новый пост. Некорректный пост не отправляется.
func (c *Client) CreatePost(ctx context.Context, post *dto.Post) (*dto.Post, error) {
	if err := checkPayload(post); err != nil {
		return nil, err
	}
	var created dto.Post
	if err := c.doJSON(ctx, http.MethodPost, "/posts", post, &created); err != nil {
		return nil, err
	}
	if err := checkResponse(&created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListSubscriptions возвращает подписки текущего пользователя.
func (c *Client) ListSubscriptions(ctx context.Context) ([]dto.Subscription, error) {
	var subs []dto.Subscription
	if err := c.doJSON(ctx, http.MethodGet, "/subscriptions", nil, &subs); err != nil {
		return nil, err
	}
	for i := range subs {
		if err := checkResponse(&subs[i]); err != nil {
			return nil, fmt.Errorf("subscription %d: %w", i, err)
		}
	}
	return subs, nil
}

// Login входит по email и паролю и сохраняет полученный токен.
func (c *Client) Login(ctx context.Context, email, password string) (*dto.AuthUser, error) {
	req := &dto.LoginRequest{Email: email, Password: password}
	if err := checkPayload(req); err != nil {
		return nil, err
	}
	var resp dto.LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", req, &resp); err != nil {
		return nil, err
	}
	user := resp.User
	if user.Token == "" {
		user.Token = resp.Token
	}
	if err := checkResponse(&user); err != nil {
		return nil, err
	}
	if c.tokens != nil && user.Token != "" {
		if err := c.tokens.SetToken(user.Token); err != nil {
			return nil, fmt.Errorf("store token: %w", err)
		}
	}
	return &user, nil
}

// UploadMedia загружает файл в медиатеку multipart запросом с полем "file".
func (c *Client) UploadMedia(ctx context.Context, f editor.File) (*dto.MediaUpload, error) {
	if f.Name == "" || len(f.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidPayload)
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", multipart.FileContentDisposition("file", f.Name))
	h.Set("Content-Type", f.Type)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var uploaded dto.MediaUpload
	if err := c.do(ctx, http.MethodPost, "/media", &buf, mw.FormDataContentType(), &uploaded); err != nil {
		return nil, err
	}
	if err := checkResponse(&uploaded); err != nil {
		return nil, err
	}
	return &uploaded, nil
}

// UploadImage загружает изображение редактора через API.
func (c *Client) UploadImage(ctx context.Context, f editor.File) (string, string, error) {
	uploaded, err := c.UploadMedia(ctx, f)
	if err != nil {
		return "", "", err
	}
	return uploaded.URL, uploaded.ID, nil
}
