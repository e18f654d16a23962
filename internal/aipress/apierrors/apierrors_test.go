package apierrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalogueCodes(t *testing.T) {
	seen := map[int]bool{}
	prev := 0
	for _, e := range Catalogue {
		assert.False(t, seen[e.Code], "duplicate code %d", e.Code)
		seen[e.Code] = true
		assert.Greater(t, e.Code, prev, "catalogue must be sorted")
		prev = e.Code
		assert.NotEmpty(t, http.StatusText(e.StatusCode), "code %d", e.Code)
		assert.NotEmpty(t, e.RuErr, "code %d", e.Code)
	}
}

func TestFormattedErrorsMatchByCode(t *testing.T) {
	err := fmt.Errorf("upload: %w", ErrMediaTypeNotAllowed.WithFormattedMessage("text/plain"))
	assert.ErrorIs(t, err, ErrMediaTypeNotAllowed)
	assert.NotErrorIs(t, err, ErrMediaTooLarge)
	assert.Equal(t, "Тип файла text/plain не поддерживается", UserMessage(err))

	assert.Equal(t, "media exceeds ", ErrMediaTooLarge.WithFormattedMessage().Err)
	assert.Equal(t, ErrGeneric.RuErr, UserMessage(errors.New("boom")))
}

func TestTusdError(t *testing.T) {
	te := ErrMediaTooLarge.WithFormattedMessage("20 MB").TusdError()
	assert.Equal(t, "ERR_2002", te.ErrorCode)
	assert.Equal(t, http.StatusRequestEntityTooLarge, te.HTTPResponse.StatusCode)
	assert.Contains(t, te.HTTPResponse.Body, `"code":2002`)
}
