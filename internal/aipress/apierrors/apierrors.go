// Пакет содержит каталог ошибок сервиса публикаций. Каждая ошибка имеет код, HTTP статус и
// сообщения на английском и русском, что позволяет единообразно отвечать клиенту и показывать
// понятные уведомления пользователю.
//
// Основные возможности:
//   - Ошибки медиа (тип, размер, хранилище), редактора, авторизации, биллинга и валидации.
//   - Коды ошибок, соответствующие HTTP статусам.
//   - Ответ для загрузчика tus в том же формате.
//   - Форматирование сообщений с аргументами.
package apierrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	tusd "github.com/tus/tusd/v2/pkg/handler"
)

type DefinedError struct {
	Code       int    `json:"code"`
	StatusCode int    `json:"-"`
	Err        string `json:"error"`
	RuErr      string `json:"ru_error,omitempty"`
}

func (e DefinedError) Error() string {
	return e.Err
}

// Is сравнивает ошибки по коду, чтобы errors.Is работал и для отформатированных копий.
func (e DefinedError) Is(target error) bool {
	var d DefinedError
	if !errors.As(target, &d) {
		return false
	}
	return d.Code == e.Code
}

func (e DefinedError) TusdError() tusd.Error {
	b, _ := json.Marshal(e)
	return tusd.Error{
		ErrorCode: fmt.Sprintf("ERR_%d", e.Code),
		Message:   e.Err,
		HTTPResponse: tusd.HTTPResponse{
			StatusCode: e.StatusCode,
			Body:       string(b),
			Header: tusd.HTTPHeader{
				"Content-Type": "application/json",
			},
		},
	}
}

var (
	// 1*** - auth errors
	ErrFailedLogin          = DefinedError{Code: 1001, StatusCode: http.StatusUnauthorized, Err: "invalid credentials", RuErr: "Неправильный email или пароль"}
	ErrAccessTokenRequired  = DefinedError{Code: 1002, StatusCode: http.StatusUnauthorized, Err: "access token is required", RuErr: "Требуется токен доступа"}
	ErrAccessTokenExpired   = DefinedError{Code: 1003, StatusCode: http.StatusUnauthorized, Err: "access token expired", RuErr: "Срок действия токена истёк, войдите снова"}
	ErrForbidden            = DefinedError{Code: 1004, StatusCode: http.StatusForbidden, Err: "forbidden", RuErr: "Недостаточно прав"}
	ErrTooManyRequests      = DefinedError{Code: 1005, StatusCode: http.StatusTooManyRequests, Err: "too many requests", RuErr: "Слишком много запросов, попробуйте позже"}
	ErrLoginCredentialsNeed = DefinedError{Code: 1006, StatusCode: http.StatusBadRequest, Err: "both email and password are required", RuErr: "Поля email и пароль не могут быть пустыми"}

	// 2*** - media errors
	ErrMediaTypeNotAllowed = DefinedError{Code: 2001, StatusCode: http.StatusUnsupportedMediaType, Err: "media type %s is not allowed", RuErr: "Тип файла %s не поддерживается"}
	ErrMediaTooLarge       = DefinedError{Code: 2002, StatusCode: http.StatusRequestEntityTooLarge, Err: "media exceeds %s", RuErr: "Размер файла превышает %s"}
	ErrMediaNotFound       = DefinedError{Code: 2003, StatusCode: http.StatusNotFound, Err: "media not found", RuErr: "Файл не найден"}
	ErrMediaUploadFailed   = DefinedError{Code: 2004, StatusCode: http.StatusBadGateway, Err: "media upload failed", RuErr: "Не удалось загрузить файл"}
	ErrMediaFileRequired   = DefinedError{Code: 2005, StatusCode: http.StatusBadRequest, Err: "file is required", RuErr: "Файл не передан"}

	// 3*** - editor errors
	ErrDocumentInvalid    = DefinedError{Code: 3001, StatusCode: http.StatusBadRequest, Err: "document is invalid: %s", RuErr: "Документ некорректен: %s"}
	ErrMarkdownInvalid    = DefinedError{Code: 3002, StatusCode: http.StatusBadRequest, Err: "markdown cannot be parsed", RuErr: "Не удалось разобрать Markdown"}
	ErrSelectionOutOfDoc  = DefinedError{Code: 3003, StatusCode: http.StatusBadRequest, Err: "selection out of document", RuErr: "Выделение выходит за пределы документа"}
	ErrUnsupportedRecord  = DefinedError{Code: 3004, StatusCode: http.StatusBadRequest, Err: "unsupported record kind %s", RuErr: "Неизвестный тип записи %s"}
	ErrRecordValidateFail = DefinedError{Code: 3005, StatusCode: http.StatusUnprocessableEntity, Err: "%s record is invalid", RuErr: "Запись %s заполнена некорректно"}

	// 4*** - billing errors
	ErrUnknownTier          = DefinedError{Code: 4001, StatusCode: http.StatusBadRequest, Err: "unknown tier %s", RuErr: "Неизвестный тариф %s"}
	ErrSubscriptionInvalid  = DefinedError{Code: 4002, StatusCode: http.StatusBadRequest, Err: "subscription is invalid", RuErr: "Подписка заполнена некорректно"}
	ErrPaymentGatewayFailed = DefinedError{Code: 4003, StatusCode: http.StatusBadGateway, Err: "payment gateway error", RuErr: "Ошибка платёжного сервиса"}

	// 5*** - network errors
	ErrNetwork         = DefinedError{Code: 5001, StatusCode: http.StatusBadGateway, Err: "network error", RuErr: "Сервер недоступен, проверьте подключение"}
	ErrInvalidResponse = DefinedError{Code: 5002, StatusCode: http.StatusBadGateway, Err: "invalid response from server", RuErr: "Сервер вернул некорректные данные"}

	// 9*** - common
	ErrInvalidID        = DefinedError{Code: 9001, StatusCode: http.StatusBadRequest, Err: "invalid ID", RuErr: "Указан неверный ID"}
	ErrGeneric          = DefinedError{Code: 9002, StatusCode: http.StatusInternalServerError, Err: "internal error", RuErr: "Что-то пошло не так"}
	ErrRequestMalformed = DefinedError{Code: 9003, StatusCode: http.StatusBadRequest, Err: "request malformed", RuErr: "Некорректный запрос"}
	ErrEntityTooLarge   = DefinedError{Code: 9004, StatusCode: http.StatusRequestEntityTooLarge, Err: "request entity too large", RuErr: "Слишком большой запрос"}
)

// Catalogue все ошибки каталога в порядке кодов, для документации.
var Catalogue = []DefinedError{
	ErrFailedLogin, ErrAccessTokenRequired, ErrAccessTokenExpired, ErrForbidden, ErrTooManyRequests, ErrLoginCredentialsNeed,
	ErrMediaTypeNotAllowed, ErrMediaTooLarge, ErrMediaNotFound, ErrMediaUploadFailed, ErrMediaFileRequired,
	ErrDocumentInvalid, ErrMarkdownInvalid, ErrSelectionOutOfDoc, ErrUnsupportedRecord, ErrRecordValidateFail,
	ErrUnknownTier, ErrSubscriptionInvalid, ErrPaymentGatewayFailed,
	ErrNetwork, ErrInvalidResponse,
	ErrInvalidID, ErrGeneric, ErrRequestMalformed, ErrEntityTooLarge,
}

func (e DefinedError) WithFormattedMessage(args ...interface{}) DefinedError {
	if len(args) > 0 {
		e.Err = fmt.Sprintf(e.Err, args...)
		e.RuErr = fmt.Sprintf(e.RuErr, args...)
	} else {
		e.Err = strings.Replace(e.Err, "%s", "", -1)
		e.RuErr = strings.Replace(e.RuErr, "%s", "", -1)
	}
	return e
}

// UserMessage сообщение для уведомления пользователя. Неизвестные ошибки скрываются за общим текстом.
func UserMessage(err error) string {
	var d DefinedError
	if errors.As(err, &d) && d.RuErr != "" {
		return d.RuErr
	}
	return ErrGeneric.RuErr
}
