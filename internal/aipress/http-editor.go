package aipress

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aisa-it/aipress/internal/aipress/apierrors"
	"github.com/aisa-it/aipress/internal/aipress/dto"
	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
	"github.com/aisa-it/aipress/internal/aipress/editor/htmlrender"
	"github.com/aisa-it/aipress/internal/aipress/editor/markdown"
	"github.com/aisa-it/aipress/internal/aipress/editor/tiptap"
	"github.com/aisa-it/aipress/internal/aipress/media"
	"github.com/aisa-it/aipress/internal/aipress/validation"
)

// MarkdownImportResponse документ, разобранный из Markdown, и его заголовок.
type MarkdownImportResponse struct {
	FrontMatter markdown.FrontMatter `json:"front_matter"`
	Doc         dto.Document         `json:"doc"`
}

// ValidateRequest запись вида kind для проверки.
type ValidateRequest struct {
	Kind   string          `json:"kind" validate:"required"`
	Record json.RawMessage `json:"record" validate:"required"`
}

// ValidateResponse результат проверки записи и поля, не прошедшие проверку.
type ValidateResponse struct {
	Valid  bool     `json:"valid"`
	Fields []string `json:"fields,omitempty"`
}

func (s *Server) AddEditorServices(g *echo.Group) {
	editorGroup := g.Group("editor/")
	editorGroup.POST("markdown/", s.importMarkdown)
	editorGroup.POST("export/markdown/", s.exportMarkdown)
	editorGroup.POST("export/html/", s.exportHTML)
	editorGroup.POST("validate/", s.validateRecord)
	editorGroup.POST("dangling/", s.danglingImages)
}

// readDocument разбирает тело запроса как JSON документа редактора.
func (s *Server) readDocument(c echo.Context) (*edtypes.Node, error) {
	doc, err := tiptap.ParseJSON(c.Request().Body, s.schema)
	if err != nil {
		return nil, apierrors.ErrDocumentInvalid.WithFormattedMessage(err.Error())
	}
	return doc, nil
}

func (s *Server) importMarkdown(c echo.Context) error {
	src, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return EError(c, err)
	}
	fm, body, err := markdown.SplitFrontMatter(src)
	if err != nil {
		return EErrorDefined(c, apierrors.ErrMarkdownInvalid)
	}
	doc, err := markdown.ParseDocument(body, s.schema)
	if err != nil {
		return EErrorDefined(c, apierrors.ErrMarkdownInvalid)
	}
	return c.JSON(http.StatusOK, MarkdownImportResponse{FrontMatter: fm, Doc: dto.Document{Node: doc}})
}

func (s *Server) exportMarkdown(c echo.Context) error {
	doc, err := s.readDocument(c)
	if err != nil {
		return EError(c, err)
	}
	return c.Blob(http.StatusOK, "text/markdown; charset=UTF-8", []byte(markdown.Serialize(doc)))
}

func (s *Server) exportHTML(c echo.Context) error {
	doc, err := s.readDocument(c)
	if err != nil {
		return EError(c, err)
	}
	out, err := htmlrender.Render(doc)
	if err != nil {
		return EError(c, err)
	}
	return c.HTMLBlob(http.StatusOK, out)
}

func (s *Server) validateRecord(c echo.Context) error {
	var req ValidateRequest
	if err := c.Bind(&req); err != nil {
		return EErrorDefined(c, apierrors.ErrRequestMalformed)
	}
	if err := c.Validate(req); err != nil {
		return EErrorDefined(c, apierrors.ErrRequestMalformed)
	}

	record, err := validation.NewRecord(req.Kind)
	if err != nil {
		return EErrorDefined(c, apierrors.ErrUnsupportedRecord.WithFormattedMessage(req.Kind))
	}
	if err := json.Unmarshal(req.Record, record); err != nil {
		return EErrorDefined(c, apierrors.ErrRecordValidateFail.WithFormattedMessage(req.Kind))
	}

	err = validation.Record(record)
	if err != nil && !errors.Is(err, validation.ErrEmptyPost) && validation.Fields(err) == nil {
		return EError(c, err)
	}
	resp := ValidateResponse{Valid: err == nil, Fields: validation.Fields(err)}
	if errors.Is(err, validation.ErrEmptyPost) {
		resp.Fields = []string{"Post.Content"}
	}
	return c.JSON(http.StatusOK, resp)
}

// danglingImages перечисляет картинки документа, чьи медиа удалены. Документ не изменяется.
func (s *Server) danglingImages(c echo.Context) error {
	doc, err := s.readDocument(c)
	if err != nil {
		return EError(c, err)
	}
	images, err := s.media.Dangling(c.Request().Context(), doc)
	if err != nil {
		return EError(c, err)
	}
	if images == nil {
		images = []media.DanglingImage{}
	}
	return c.JSON(http.StatusOK, images)
}
