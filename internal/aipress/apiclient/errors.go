package apiclient

import (
	"fmt"
	"io"
	"net/http"
)

// Kind класс ошибки запроса.
type Kind int

const (
	KindNetwork Kind = iota
	KindUnauthorized
	KindForbidden
	KindRateLimited
	KindClient
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate_limited"
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error неуспешный запрос к API.
type Error struct {
	StatusCode int
	Kind       Kind
	Method     string
	Path       string
	// начало тела ответа
	Body string
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == KindNetwork {
		return fmt.Sprintf("api %s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("api %s %s: status %d (%s): %s", e.Method, e.Path, e.StatusCode, e.Kind, e.Body)
}

func (e *Error) Unwrap() error { return e.Err }

func kindOf(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	}
	return KindClient
}

func newError(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	e := &Error{
		StatusCode: resp.StatusCode,
		Kind:       kindOf(resp.StatusCode),
		Body:       string(body),
	}
	if resp.Request != nil {
		e.Method = resp.Request.Method
		e.Path = resp.Request.URL.Path
	}
	return e
}
