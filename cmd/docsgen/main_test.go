package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aisa-it/aipress/internal/aipress/apierrors"
)

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, apierrors.Catalogue))
	out := buf.String()

	assert.Contains(t, out, "# Перечень кодов ошибок")
	assert.Contains(t, out, "**2001**")
	assert.Contains(t, out, "415 *Unsupported Media Type*")
	assert.Contains(t, out, "`media type %s is not allowed`")
	assert.Contains(t, out, "`Файл не найден`")
}
