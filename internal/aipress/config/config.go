// Управление конфигурацией сервиса публикаций из переменных окружения.
// Содержит структуру Config и функцию ReadConfig для её загрузки.
//
// Основные возможности:
//   - Загрузка конфигурации из переменных окружения по тегам env.
//   - Проверка обязательных переменных (WEB_URL).
//   - Преобразование типов (string, int, bool).
//   - Маскировка секретов (ключи, токены, пароли) в логах.
//   - Значения по умолчанию для лимитов загрузки, уведомлений и расписания очистки.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"
)

type Config struct {
	WebURLRaw string `env:"WEB_URL"`
	WebURL    *url.URL

	// API_URL внешнего REST API публикаций для клиента и CLI.
	APIURL string `env:"API_URL"`

	DatabaseDSN string `env:"DATABASE_URL"`

	AWSRegion     string `env:"AWS_REGION"`
	AWSAccessKey  string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey  string `env:"AWS_SECRET_ACCESS_KEY"`
	AWSEndpoint   string `env:"AWS_S3_ENDPOINT_URL"`
	AWSBucketName string `env:"AWS_S3_BUCKET_NAME"`

	// Каталог для локального хранилища файлов, если S3 не настроен.
	MediaPath      string `env:"MEDIA_PATH"`
	LocalStorePath string `env:"LOCAL_STORE_PATH"`

	StripeSecretKey       string `env:"STRIPE_SECRET_KEY"`
	StripePriceBasic      string `env:"STRIPE_PRICE_BASIC"`
	StripePricePro        string `env:"STRIPE_PRICE_PRO"`
	StripePriceEnterprise string `env:"STRIPE_PRICE_ENTERPRISE"`

	MediaMaxSizeMB      int    `env:"MEDIA_MAX_SIZE_MB"`
	NoticeTTLSeconds    int    `env:"NOTICE_TTL_SECONDS"`
	AssetsCleanSchedule string `env:"ASSETS_CLEAN_SCHEDULE"`
	SessionTokenKey     string `env:"SESSION_TOKEN_KEY"`

	MetricsAddr string `env:"METRICS_ADDR"`
	ListenAddr  string `env:"LISTEN_ADDR"`
	BodyLimit   string `env:"BODY_LIMIT"`
}

var ErrWebURLRequired = errors.New("WEB_URL is required")

// ReadConfig загружает конфигурацию и завершает процесс, если она некорректна.
func ReadConfig() *Config {
	cfg, err := Load()
	if err != nil {
		slog.Error("Read config", "err", err)
		os.Exit(1)
	}
	return cfg
}

// Load загружает конфигурацию из окружения и проставляет значения по умолчанию.
func Load() (*Config, error) {
	config := &Config{}

	envConfig("env", config)

	if config.WebURLRaw == "" {
		return nil, ErrWebURLRequired
	}
	var err error
	config.WebURL, err = url.Parse(config.WebURLRaw)
	if err != nil {
		return nil, fmt.Errorf("WEB_URL incorrect: %w", err)
	}

	if config.MediaMaxSizeMB <= 0 {
		config.MediaMaxSizeMB = 20
	}
	if config.NoticeTTLSeconds <= 0 {
		config.NoticeTTLSeconds = 5
	}
	if config.AssetsCleanSchedule == "" {
		config.AssetsCleanSchedule = "0 3 * * *"
	}
	if config.SessionTokenKey == "" {
		config.SessionTokenKey = "token"
	}
	if config.MediaPath == "" {
		config.MediaPath = "media"
	}
	if config.LocalStorePath == "" {
		config.LocalStorePath = "aipress.db"
	}
	if config.MetricsAddr == "" {
		config.MetricsAddr = ":2112"
	}
	if config.ListenAddr == "" {
		config.ListenAddr = ":8080"
	}
	if config.BodyLimit == "" {
		config.BodyLimit = fmt.Sprintf("%dM", config.MediaMaxSizeMB+1)
	}

	return config, nil
}

// MediaMaxSize лимит размера загружаемого файла в байтах.
func (c *Config) MediaMaxSize() int64 {
	return int64(c.MediaMaxSizeMB) << 20
}

// NoticeTTL время жизни уведомления.
func (c *Config) NoticeTTL() time.Duration {
	return time.Duration(c.NoticeTTLSeconds) * time.Second
}

// Присваивает полям в переданной структуре значения переменных. Название переменной для каждого поля лежит в теге этого поля.
func envConfig(key string, s interface{}) {
	v := reflect.ValueOf(s).Elem()
	typeParam := v.Type()
	for i := 0; i < v.NumField(); i++ {
		fName := typeParam.Field(i).Name
		fEnvTag := typeParam.Field(i).Tag.Get(key)

		if !Exist(fEnvTag) {
			continue
		}

		raw := GetEnv(fEnvTag)
		if raw == "" {
			continue
		}

		logValue := raw
		if isSecret(fName) {
			logValue = mask(raw)
		}
		slog.Info("Set config value",
			slog.String("key", typeParam.Name()+"."+fName),
			slog.String("value", logValue),
			slog.String("source", "ENVIRONMENT"),
		)

		switch v.Field(i).Interface().(type) {
		case string:
			v.Field(i).SetString(raw)
		case int:
			v.Field(i).SetInt(int64(GetIntEnv(fEnvTag)))
		case bool:
			v.Field(i).SetBool(GetBoolEnv(fEnvTag))
		}
	}
}

func isSecret(field string) bool {
	name := strings.ToLower(field)
	return strings.Contains(name, "pass") || strings.Contains(name, "secret") ||
		strings.Contains(name, "token") || strings.Contains(name, "dsn")
}

// mask оставляет первый и последний символ.
func mask(value string) string {
	r := []rune(value)
	if len(r) <= 2 {
		return strings.Repeat("*", len(r))
	}
	return string(r[0]) + strings.Repeat("*", len(r)-2) + string(r[len(r)-1])
}
