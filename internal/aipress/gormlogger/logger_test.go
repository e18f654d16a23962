package gormlogger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	gormLog "gorm.io/gorm/logger"
)

func newTestLogger(buf *bytes.Buffer) *GormLogger {
	h := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewGormLogger(slog.New(h), 10*time.Millisecond, true)
}

func TestTrace(t *testing.T) {
	ctx := context.Background()
	query := func() (string, int64) { return "SELECT * FROM media_items", 2 }

	var buf bytes.Buffer
	gl := newTestLogger(&buf)

	gl.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	assert.Contains(t, buf.String(), "SLOW SQL")
	assert.Contains(t, buf.String(), "rowsCount=2")

	buf.Reset()
	gl.Trace(ctx, time.Now(), query, errors.New("conn refused"))
	assert.Contains(t, buf.String(), "level=ERROR")

	buf.Reset()
	gl.Trace(ctx, time.Now(), query, gorm.ErrRecordNotFound)
	assert.Contains(t, buf.String(), "level=DEBUG")

	buf.Reset()
	gl.LogMode(gormLog.Silent).Trace(ctx, time.Now().Add(-time.Second), query, nil)
	assert.Empty(t, buf.String())
}

func TestParamsFilter(t *testing.T) {
	var buf bytes.Buffer
	gl := newTestLogger(&buf)
	_, params := gl.ParamsFilter(context.Background(), "SELECT ?", 1)
	assert.Nil(t, params)

	gl.ParameterizedQueries = false
	_, params = gl.ParamsFilter(context.Background(), "SELECT ?", 1)
	assert.Equal(t, []interface{}{1}, params)
}
