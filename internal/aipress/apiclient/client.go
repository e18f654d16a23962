// Пакет apiclient реализует клиент REST API публикаций.
//
// Основные возможности:
//   - Цепочки перехватчиков запросов и ответов.
//   - Токен доступа из TokenStore добавляется в заголовок Authorization, просроченный токен сбрасывается.
//   - Классификация ошибок по HTTP статусу: 401 сбрасывает токен и вызывает OnUnauthorized,
//     403 и 429 только логируются.
//   - Каждая исходящая запись проверяется до отправки, каждая входящая до возврата вызывающему.
//   - Повторы запросов выключены по умолчанию.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/aisa-it/aipress/internal/aipress/validation"
)

var (
	ErrInvalidPayload  = errors.New("invalid request payload")
	ErrInvalidResponse = errors.New("invalid response payload")
)

// TokenStore хранилище токена доступа. Пустая строка означает отсутствие токена.
type TokenStore interface {
	Token() (string, error)
	SetToken(token string) error
	ClearToken() error
}

// RequestInterceptor изменяет запрос перед отправкой. Ошибка прерывает отправку.
type RequestInterceptor func(req *retryablehttp.Request) error

// ResponseInterceptor проверяет ответ. Ошибка возвращается вызывающему, тело ответа закрывает клиент.
type ResponseInterceptor func(resp *http.Response) error

type Options struct {
	BaseURL string
	Tokens  TokenStore
	// Количество повторов; 0 отключает повторы.
	RetryMax       int
	Timeout        time.Duration
	OnUnauthorized func()
	HTTPClient     *http.Client
}

type Client struct {
	baseURL        string
	http           *retryablehttp.Client
	tokens         TokenStore
	onUnauthorized func()

	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("api base url is required")
	}
	cl := retryablehttp.NewClient()
	cl.RetryMax = max(opts.RetryMax, 0)
	cl.RetryWaitMin = 500 * time.Millisecond
	cl.RetryWaitMax = 5 * time.Second
	cl.ErrorHandler = retryablehttp.PassthroughErrorHandler
	cl.Logger = slog.Default()
	if opts.HTTPClient != nil {
		cl.HTTPClient = opts.HTTPClient
	}
	if opts.Timeout > 0 {
		cl.HTTPClient.Timeout = opts.Timeout
	} else if cl.HTTPClient.Timeout == 0 {
		cl.HTTPClient.Timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:        strings.TrimSuffix(opts.BaseURL, "/"),
		http:           cl,
		tokens:         opts.Tokens,
		onUnauthorized: opts.OnUnauthorized,
	}
	c.requestInterceptors = []RequestInterceptor{acceptJSON, c.attachToken}
	c.responseInterceptors = []ResponseInterceptor{c.classify}
	return c, nil
}

// UseRequest добавляет перехватчик запросов в конец цепочки.
func (c *Client) UseRequest(i RequestInterceptor) {
	c.requestInterceptors = append(c.requestInterceptors, i)
}

// UseResponse добавляет перехватчик ответов в конец цепочки.
func (c *Client) UseResponse(i ResponseInterceptor) {
	c.responseInterceptors = append(c.responseInterceptors, i)
}

func acceptJSON(req *retryablehttp.Request) error {
	req.Header.Set("Accept", "application/json")
	return nil
}

func (c *Client) attachToken(req *retryablehttp.Request) error {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if token == "" {
		return nil
	}
	if tokenExpired(token, time.Now()) {
		slog.Info("Stored token expired, dropping it")
		if err := c.tokens.ClearToken(); err != nil {
			slog.Warn("Clear expired token", "err", err)
		}
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// tokenExpired читает exp из JWT без проверки подписи. Непрозрачные токены считаются действующими.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}

func (c *Client) classify(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	apiErr := newError(resp)
	switch apiErr.Kind {
	case KindUnauthorized:
		slog.Warn("API unauthorized, clearing token", "method", apiErr.Method, "path", apiErr.Path)
		if c.tokens != nil {
			if err := c.tokens.ClearToken(); err != nil {
				slog.Warn("Clear token", "err", err)
			}
		}
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
	case KindForbidden, KindRateLimited:
		slog.Warn("API request refused", "status", apiErr.StatusCode, "method", apiErr.Method, "path", apiErr.Path)
	}
	return apiErr
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, target any) error {
	var rawBody interface{}
	if body != nil {
		rawBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, rawBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, intercept := range c.requestInterceptors {
		if err := intercept(req); err != nil {
			return err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("API request fail", "method", method, "path", path, "err", err)
		return &Error{Kind: KindNetwork, Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	for _, intercept := range c.responseInterceptors {
		if err := intercept(resp); err != nil {
			return err
		}
	}

	if target == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("%w: decode: %w", ErrInvalidResponse, err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, target any) error {
	if payload == nil {
		return c.do(ctx, method, path, nil, "", target)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return c.do(ctx, method, path, bytes.NewReader(b), "application/json", target)
}

func checkPayload(record any) error {
	if err := validation.Record(record); err != nil {
		slog.Debug("Payload rejected", "type", fmt.Sprintf("%T", record), "fields", validation.Fields(err), "err", err)
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}

func checkResponse(record any) error {
	if err := validation.Record(record); err != nil {
		slog.Warn("Response record rejected", "type", fmt.Sprintf("%T", record), "fields", validation.Fields(err), "err", err)
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return nil
}
