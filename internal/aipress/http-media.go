package aipress

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/labstack/echo/v4"

	"github.com/aisa-it/aipress/internal/aipress/apierrors"
	"github.com/aisa-it/aipress/internal/aipress/dao"
)

// MediaListResponse страница медиатеки.
type MediaListResponse struct {
	Count  int64           `json:"count"`
	Offset int             `json:"offset"`
	Limit  int             `json:"limit"`
	Result []dao.MediaItem `json:"result"`
}

func (s *Server) AddMediaServices(g *echo.Group) error {
	tusHandler, err := s.media.TUSHandler(s.cfg, tusPath)
	if err != nil {
		return err
	}

	g.POST("media/", s.uploadMedia)
	g.GET("media/", s.getMediaList)
	g.GET("media/:id/", s.getMedia)
	g.GET("media/:id/file/", s.getMediaFile)
	g.DELETE("media/:id/", s.deleteMedia)
	g.Any("media/tus/*", tusHandler)
	return nil
}

func mediaID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		return uuid.Nil, apierrors.ErrInvalidID
	}
	return id, nil
}

// uploadMedia загружает файл из поля формы file.
func (s *Server) uploadMedia(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return EErrorDefined(c, apierrors.ErrMediaFileRequired)
		}
		return EErrorDefined(c, apierrors.ErrRequestMalformed)
	}
	f, err := fh.Open()
	if err != nil {
		return EError(c, err)
	}
	defer f.Close()

	item, err := s.media.Upload(c.Request().Context(), fh.Filename, fh.Header.Get(echo.HeaderContentType), fh.Size, f)
	if err != nil {
		return EError(c, err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (s *Server) getMediaList(c echo.Context) error {
	offset, limit := 0, 50
	if err := echo.QueryParamsBinder(c).
		Int("offset", &offset).
		Int("limit", &limit).
		BindError(); err != nil {
		return EErrorDefined(c, apierrors.ErrRequestMalformed)
	}
	if offset < 0 {
		offset = 0
	}

	items, count, err := s.media.List(c.Request().Context(), offset, limit)
	if err != nil {
		return EError(c, err)
	}
	if items == nil {
		items = []dao.MediaItem{}
	}
	return c.JSON(http.StatusOK, MediaListResponse{
		Count:  count,
		Offset: offset,
		Limit:  limit,
		Result: items,
	})
}

func (s *Server) getMedia(c echo.Context) error {
	id, err := mediaID(c)
	if err != nil {
		return EError(c, err)
	}
	item, err := s.media.Get(c.Request().Context(), id)
	if err != nil {
		return EError(c, err)
	}
	return c.JSON(http.StatusOK, item)
}

// getMediaFile отдаёт содержимое медиа, с параметром thumb=true миниатюру, если она есть.
func (s *Server) getMediaFile(c echo.Context) error {
	id, err := mediaID(c)
	if err != nil {
		return EError(c, err)
	}
	var thumb bool
	if err := echo.QueryParamsBinder(c).Bool("thumb", &thumb).BindError(); err != nil {
		return EErrorDefined(c, apierrors.ErrRequestMalformed)
	}

	rc, contentType, err := s.media.Open(c.Request().Context(), id, thumb)
	if err != nil {
		return EError(c, err)
	}
	defer rc.Close()

	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	return c.Stream(http.StatusOK, contentType, rc)
}

func (s *Server) deleteMedia(c echo.Context) error {
	id, err := mediaID(c)
	if err != nil {
		return EError(c, err)
	}
	if err := s.media.Delete(c.Request().Context(), id); err != nil {
		return EError(c, err)
	}
	slog.Debug("Media removed by request", "id", id)
	return c.NoContent(http.StatusNoContent)
}
