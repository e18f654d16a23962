package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aisa-it/aipress/internal/aipress/dto"
	"github.com/aisa-it/aipress/internal/aipress/editor"
	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
)

type memTokens struct {
	mu    sync.Mutex
	token string
}

func (m *memTokens) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *memTokens) SetToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *memTokens) ClearToken() error { return m.SetToken("") }

func newClient(t *testing.T, h http.Handler, tokens TokenStore, onUnauthorized func()) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL, Tokens: tokens, OnUnauthorized: onUnauthorized})
	require.NoError(t, err)
	return c
}

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": jwt.NewNumericDate(exp)}).SignedString([]byte("k"))
	require.NoError(t, err)
	return tok
}

func samplePost() dto.Post {
	s := edtypes.DefaultSchema()
	return dto.Post{
		ID:          "post-1",
		Title:       "Hello",
		Author:      dto.Author{ID: "u1"},
		Publication: dto.PublicationRef{ID: "pub-1"},
		Content:     dto.Document{Node: s.MustNode(edtypes.DocType, nil, s.MustNode(edtypes.ParagraphType, nil, s.Text("body")))},
	}
}

func TestBearerTokenAttached(t *testing.T) {
	valid := signed(t, time.Now().Add(time.Hour))
	var gotAuth, gotQuery string
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("publicationId")
		json.NewEncoder(w).Encode([]dto.Post{samplePost()})
	}), &memTokens{token: valid}, nil)

	posts, err := c.ListPosts(context.Background(), "pub 1")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "body", posts[0].Content.PlainText())
	assert.Equal(t, "Bearer "+valid, gotAuth)
	assert.Equal(t, "pub 1", gotQuery)
}

func TestExpiredTokenDropped(t *testing.T) {
	tokens := &memTokens{token: signed(t, time.Now().Add(-time.Minute))}
	var gotAuth string
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("[]"))
	}), tokens, nil)

	_, err := c.ListSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
	tok, _ := tokens.Token()
	assert.Empty(t, tok)
}

func TestOpaqueTokenAttached(t *testing.T) {
	var gotAuth string
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("[]"))
	}), &memTokens{token: "opaque"}, nil)

	_, err := c.ListSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer opaque", gotAuth)
}

func TestErrorClassification(t *testing.T) {
	for _, tc := range []struct {
		status     int
		kind       Kind
		clears     bool
		redirected bool
	}{
		{http.StatusUnauthorized, KindUnauthorized, true, true},
		{http.StatusForbidden, KindForbidden, false, false},
		{http.StatusTooManyRequests, KindRateLimited, false, false},
		{http.StatusBadRequest, KindClient, false, false},
		{http.StatusInternalServerError, KindServer, false, false},
	} {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			tokens := &memTokens{token: "opaque"}
			var redirected atomic.Bool
			var calls atomic.Int32
			c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, "nope", tc.status)
			}), tokens, func() { redirected.Store(true) })

			_, err := c.ListSubscriptions(context.Background())
			var apiErr *Error
			require.True(t, errors.As(err, &apiErr), "%v", err)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, tc.kind, apiErr.Kind)
			assert.Equal(t, "/subscriptions", apiErr.Path)

			tok, _ := tokens.Token()
			assert.Equal(t, tc.clears, tok == "")
			assert.Equal(t, tc.redirected, redirected.Load())
			// повторов нет
			assert.EqualValues(t, 1, calls.Load())
		})
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c, err := New(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.ListSubscriptions(context.Background())
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, KindNetwork, apiErr.Kind)
}

func TestInvalidPayloadNotSent(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}), nil, nil)

	post := samplePost()
	post.Title = ""
	_, err := c.CreatePost(context.Background(), &post)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = c.CreatePost(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = c.Login(context.Background(), "not-an-email", "secret")
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.Zero(t, calls.Load())
}

func TestInvalidResponseRejected(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"s1","userId":"u1","publicationId":"p1","status":"paused",` +
			`"startDate":"2024-01-01T00:00:00Z","endDate":"2024-02-01T00:00:00Z"}]`))
	}), nil, nil)

	_, err := c.ListSubscriptions(context.Background())
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestCreatePost(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in dto.Post
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&in)) {
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		in.Status = "draft"
		in.CreatedAt = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		json.NewEncoder(w).Encode(in)
	}), nil, nil)

	post := samplePost()
	created, err := c.CreatePost(context.Background(), &post)
	require.NoError(t, err)
	assert.Equal(t, "draft", created.Status)
	assert.True(t, post.Content.Equal(created.Content.Node))
}

func TestLoginStoresToken(t *testing.T) {
	tokens := &memTokens{}
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		w.Write([]byte(`{"user":{"id":"1","email":"a@b.com","role":"user"},"token":"tok-1"}`))
	}), tokens, nil)

	user, err := c.Login(context.Background(), "a@b.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", user.Token)
	tok, _ := tokens.Token()
	assert.Equal(t, "tok-1", tok)
}

func TestUploadImage(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		assert.Equal(t, "cat.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		assert.Equal(t, "PNG", string(data))
		w.Write([]byte(`{"id":"m1","url":"https://cdn.example/m1","type":"image/png","size":3}`))
	}), nil, nil)

	src, id, err := c.UploadImage(context.Background(), editor.File{Name: "cat.png", Type: "image/png", Data: []byte("PNG")})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/m1", src)
	assert.Equal(t, "m1", id)
}

func TestInterceptorsRunInOrder(t *testing.T) {
	var seen string
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Trace")
		w.Write([]byte("[]"))
	}), nil, nil)
	c.UseRequest(func(req *retryablehttp.Request) error {
		req.Header.Set("X-Trace", "a")
		return nil
	})
	c.UseRequest(func(req *retryablehttp.Request) error {
		req.Header.Set("X-Trace", req.Header.Get("X-Trace")+"b")
		return nil
	})
	stop := errors.New("stop")
	var responses int
	c.UseResponse(func(*http.Response) error { responses++; return nil })

	_, err := c.ListSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ab", seen)
	assert.Equal(t, 1, responses)

	c.UseRequest(func(*retryablehttp.Request) error { return stop })
	_, err = c.ListSubscriptions(context.Background())
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, responses)
}
