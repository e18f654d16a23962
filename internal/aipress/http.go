// Пакет aipress собирает HTTP сервис публикаций: медиатеку, конвертацию документов редактора и служебные эндпоинты.
//
// Основные возможности:
//   - Глобальные middleware echo: заголовок Server, CORS, лимит тела, gzip, метрики prometheus.
//   - Медиатека: загрузка, список, выдача содержимого и миниатюр, удаление, загрузка видео через tus.
//   - Конвертация Markdown в JSON редактора и экспорт документа в Markdown и HTML.
//   - Проверка записей предметной области и отчёт о картинках с удалёнными медиа.
//   - Отдельный сервер метрик.
package aipress

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aisa-it/aipress/internal/aipress/config"
	"github.com/aisa-it/aipress/internal/aipress/editor/edtypes"
	"github.com/aisa-it/aipress/internal/aipress/media"
	"github.com/aisa-it/aipress/internal/aipress/validation"
)

const tusPath = "/api/media/tus/"

// Server HTTP сервис публикаций и сервер метрик.
type Server struct {
	e       *echo.Echo
	metrics *echo.Echo

	cfg     *config.Config
	version string
	media   *media.Service
	schema  *edtypes.Schema
}

// ServerHeader middleware adds a `Server` header to the response.
func ServerHeader(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderServer, "AIPress")
		return next(c)
	}
}

// NewServer настраивает маршруты и метрики. Метрики регистрируются в reg и отдаются из gatherer.
func NewServer(cfg *config.Config, ms *media.Service, version string, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		version: version,
		media:   ms,
		schema:  edtypes.DefaultSchema(),
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
		}

		// Ignore 404
		if code == http.StatusNotFound {
			c.NoContent(http.StatusNotFound)
			return
		}
		if code >= http.StatusInternalServerError {
			slog.Error("Unhandled error in endpoint", "url", c.Request().URL, "err", err)
		}
		EErrorMsgStatus(c, nil, code)
	}

	e.Use(ServerHeader)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
		Limit: cfg.BodyLimit,
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, tusPath)
		},
	}))
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level:     9,
		MinLength: 2048,
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, tusPath)
		},
	}))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "aipress",
		Registerer: reg,
	}))
	e.Pre(middleware.AddTrailingSlashWithConfig(middleware.TrailingSlashConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, tusPath)
		},
	}))

	e.Validator = validation.NewRequestValidator()

	apiGroup := e.Group("/api/")
	if err := s.AddMediaServices(apiGroup); err != nil {
		return nil, err
	}
	s.AddEditorServices(apiGroup)

	apiGroup.GET("version/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"version":        version,
			"media_max_size": cfg.MediaMaxSize(),
			"upload_types":   media.UploadTypes,
		})
	})

	apiGroup.GET("_health/", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	bootTimeGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "aipress",
		Name:      "boot_time",
		Help:      "Server startup time",
	})
	bootTimeGauge.Set(float64(time.Now().UnixMilli()))
	if err := reg.Register(bootTimeGauge); err != nil {
		return nil, err
	}
	if err := media.RegisterMetrics(reg); err != nil {
		return nil, err
	}

	metrics := echo.New()
	metrics.HideBanner = true
	metrics.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))

	s.e = e
	s.metrics = metrics
	return s, nil
}

// Handler основной обработчик запросов.
func (s *Server) Handler() http.Handler {
	return s.e
}

// MetricsHandler обработчик сервера метрик.
func (s *Server) MetricsHandler() http.Handler {
	return s.metrics
}

// Start запускает сервер метрик в фоне и основной сервер. Возвращается после остановки основного сервера.
func (s *Server) Start() error {
	go func() {
		if err := s.metrics.Start(s.cfg.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server fail", "err", err)
		}
	}()

	slog.Info("AIPress listen", "addr", s.cfg.ListenAddr, "metrics", s.cfg.MetricsAddr)
	if err := s.e.Start(s.cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown останавливает оба сервера.
func (s *Server) Shutdown(ctx context.Context) error {
	return errors.Join(s.e.Shutdown(ctx), s.metrics.Shutdown(ctx))
}
