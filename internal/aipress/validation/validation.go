// Пакет validation проверяет записи предметной области перед отправкой в API и после получения ответа.
//
// Основные возможности:
//   - Предикаты ValidateMetric, ValidateAuthUser, ValidatePost, ValidatePublication,
//     ValidateSubscription и ValidateEditorState возвращают bool и не паникуют.
//   - Правила записей описаны тегами go-playground/validator в пакете dto.
//   - RequestValidator подключается к echo для проверки тел запросов.
//   - Record возвращает ошибку с перечнем нарушенных полей для логов.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator"

	"github.com/aisa-it/aipress/internal/aipress/dto"
	"github.com/aisa-it/aipress/internal/aipress/editor"
)

var (
	ErrNilRecord   = errors.New("record is nil")
	ErrEmptyPost   = errors.New("post content has no text")
	ErrUnknownKind = errors.New("unknown record kind")
)

var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("notblank", notBlankValidator); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("slug", slugValidator); err != nil {
		panic(err)
	}
	return v
}

func notBlankValidator(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func slugValidator(fl validator.FieldLevel) bool {
	return slugRegex.MatchString(fl.Field().String())
}

// Record проверяет запись по правилам её типа. Принимает указатель или значение записи dto.
func Record(record any) (err error) {
	if isNil(record) {
		return ErrNilRecord
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("validate %T: %v", record, r)
		}
	}()
	if err := validate.Struct(record); err != nil {
		return err
	}
	switch r := record.(type) {
	case *dto.Post:
		return postContent(r)
	case dto.Post:
		return postContent(&r)
	}
	return nil
}

func postContent(p *dto.Post) error {
	if strings.TrimSpace(p.Content.PlainText()) == "" {
		return ErrEmptyPost
	}
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	case reflect.Struct:
		return false
	}
	// остальные виды не являются записями
	return true
}

func ValidateMetric(m *dto.Metric) bool { return Record(m) == nil }

func ValidateAuthUser(u *dto.AuthUser) bool { return Record(u) == nil }

func ValidatePost(p *dto.Post) bool { return Record(p) == nil }

func ValidatePublication(p *dto.Publication) bool { return Record(p) == nil }

func ValidateSubscription(s *dto.Subscription) bool { return Record(s) == nil }

// ValidateEditorState проверяет, что выделение лежит в пределах документа, а документ соответствует схеме.
func ValidateEditorState(st *editor.State) bool {
	if st == nil || st.Doc == nil || st.Schema == nil {
		return false
	}
	size := st.DocSize()
	for _, pos := range []int{st.Selection.Anchor, st.Selection.Head} {
		if pos < 0 || pos > size {
			return false
		}
	}
	return st.Schema.Check(st.Doc) == nil
}

// NewRecord возвращает пустую запись по имени вида: metric, user, post, publication, subscription.
func NewRecord(kind string) (any, error) {
	switch strings.ToLower(kind) {
	case "metric":
		return &dto.Metric{}, nil
	case "user", "auth-user", "authuser":
		return &dto.AuthUser{}, nil
	case "post":
		return &dto.Post{}, nil
	case "publication":
		return &dto.Publication{}, nil
	case "subscription":
		return &dto.Subscription{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// Fields имена полей, не прошедших проверку, для сообщений пользователю.
func Fields(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace())
	}
	return fields
}

// RequestValidator валидатор тел запросов для echo.
type RequestValidator struct {
	validator *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate}
}

func (rv *RequestValidator) Validate(i interface{}) error {
	if err := rv.validator.Struct(i); err != nil {
		_, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil
		}
		return err
	}
	return nil
}
