// Пакет config — загрузка и валидация конфигурации BFF Gateway
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Окружения развёртывания.
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Режимы передачи учётных данных клиентом.
const (
	// TransportCookie — access/refresh токены в httpOnly cookie, CSRF double-submit.
	TransportCookie = "cookie"
	// TransportBearer — токены в заголовке Authorization, без cookie и CSRF.
	TransportBearer = "bearer"
)

// minInternalTokenLen — минимальная длина общего секрета для Apps Script.
const minInternalTokenLen = 20

// Config содержит все параметры конфигурации BFF Gateway.
type Config struct {
	// --- Сервер ---

	// Окружение: development, test, production
	Env string
	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Разрешённые Origin (CORS + CSRF)
	AllowedOrigins []string
	// Режим передачи токенов: cookie или bearer
	AuthTransport string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Identity Provider (GoTrue) ---

	// Базовый URL IdP (без trailing slash)
	IDPURL string
	// Публичный (anon) ключ — логин, refresh, getUser, recover
	IDPAnonKey string
	// Сервисный ключ — admin API (создание/удаление пользователей)
	IDPServiceRoleKey string
	// HS256-секрет для локальной проверки подписи (опционально)
	IDPJWTSecret string
	// URL JWKS для локальной проверки асимметричных токенов (опционально)
	IDPJWKSURL string
	// TTL кэша результатов проверки токена (0 — кэш отключён)
	IDPTokenCacheTTL time.Duration
	// Максимальный размер кэша проверки токенов
	IDPTokenCacheSize int
	// URL для письма восстановления пароля (опционально)
	ResetPasswordRedirectURL string

	// --- Apps Script ---

	// URL веб-приложения Apps Script
	AppscriptBaseURL string
	// Общий секрет, передаётся в теле каждого вызова
	AppscriptInternalToken string
	// Таймаут одного вызова
	AppscriptTimeout time.Duration
	// Путь к CA-сертификату для TLS (опционально)
	AppscriptCACertPath string

	// --- Rate limit ---

	LoginPerIP       int
	LoginPerEmail    int
	LoginWindow      time.Duration
	RecoveryPerIP    int
	RecoveryPerEmail int
	RecoveryWindow   time.Duration

	// --- Наблюдаемость ---

	// Группа в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration
	// DSN Sentry (пусто — отключено)
	SentryDSN string
	// OTLP HTTP endpoint для трейсов (пусто — экспорт отключён)
	OTelEndpoint string
	// OTLP без TLS
	OTelInsecure bool

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Env = getEnvDefault("BFF_ENV", EnvDevelopment)
	switch cfg.Env {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		return nil, fmt.Errorf("BFF_ENV: недопустимое значение %q, допустимые: development, test, production", cfg.Env)
	}

	// BFF_PORT — порт HTTP-сервера (по умолчанию 3001)
	cfg.Port, err = getEnvInt("BFF_PORT", 3001)
	if err != nil {
		return nil, fmt.Errorf("BFF_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("BFF_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("BFF_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("BFF_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("BFF_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("BFF_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.AllowedOrigins = parseCSV(getEnvDefault("BFF_ALLOWED_ORIGINS", ""))

	cfg.AuthTransport = getEnvDefault("BFF_AUTH_TRANSPORT", TransportCookie)
	if cfg.AuthTransport != TransportCookie && cfg.AuthTransport != TransportBearer {
		return nil, fmt.Errorf("BFF_AUTH_TRANSPORT: недопустимое значение %q, допустимые: cookie, bearer", cfg.AuthTransport)
	}
	// В cookie-режиме CSRF без списка Origin отклонит любой изменяющий запрос
	if cfg.AuthTransport == TransportCookie && len(cfg.AllowedOrigins) == 0 {
		return nil, fmt.Errorf("BFF_ALLOWED_ORIGINS: обязательна в режиме BFF_AUTH_TRANSPORT=cookie")
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("BFF_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("BFF_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("BFF_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("BFF_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("BFF_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("BFF_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("BFF_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("BFF_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Identity Provider ---

	if cfg.IDPURL, err = getEnvURL("BFF_IDP_URL", true); err != nil {
		return nil, err
	}
	if cfg.IDPAnonKey, err = getEnvRequired("BFF_IDP_ANON_KEY"); err != nil {
		return nil, err
	}
	if cfg.IDPServiceRoleKey, err = getEnvRequired("BFF_IDP_SERVICE_ROLE_KEY"); err != nil {
		return nil, err
	}
	cfg.IDPJWTSecret = getEnvDefault("BFF_IDP_JWT_SECRET", "")
	if cfg.IDPJWKSURL, err = getEnvURL("BFF_IDP_JWKS_URL", false); err != nil {
		return nil, err
	}

	cfg.IDPTokenCacheTTL, err = getEnvDuration("BFF_IDP_TOKEN_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BFF_IDP_TOKEN_CACHE_TTL: %w", err)
	}
	if cfg.IDPTokenCacheTTL < 0 {
		return nil, fmt.Errorf("BFF_IDP_TOKEN_CACHE_TTL: отрицательное значение %s", cfg.IDPTokenCacheTTL)
	}
	cfg.IDPTokenCacheSize, err = getEnvInt("BFF_IDP_TOKEN_CACHE_SIZE", 10000)
	if err != nil {
		return nil, fmt.Errorf("BFF_IDP_TOKEN_CACHE_SIZE: %w", err)
	}
	if cfg.IDPTokenCacheSize < 1 {
		return nil, fmt.Errorf("BFF_IDP_TOKEN_CACHE_SIZE: значение %d должно быть положительным", cfg.IDPTokenCacheSize)
	}

	if cfg.ResetPasswordRedirectURL, err = getEnvURL("BFF_RESET_PASSWORD_REDIRECT_URL", false); err != nil {
		return nil, err
	}

	// --- Apps Script ---

	if cfg.AppscriptBaseURL, err = getEnvURL("BFF_APPSCRIPT_BASE_URL", true); err != nil {
		return nil, err
	}
	if cfg.AppscriptInternalToken, err = getEnvRequired("BFF_APPSCRIPT_INTERNAL_TOKEN"); err != nil {
		return nil, err
	}
	if len(cfg.AppscriptInternalToken) < minInternalTokenLen {
		return nil, fmt.Errorf("BFF_APPSCRIPT_INTERNAL_TOKEN: минимальная длина %d символов", minInternalTokenLen)
	}
	cfg.AppscriptTimeout, err = getEnvDuration("BFF_APPSCRIPT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BFF_APPSCRIPT_TIMEOUT: %w", err)
	}
	cfg.AppscriptCACertPath = getEnvDefault("BFF_APPSCRIPT_CA_CERT_PATH", "")

	// --- Rate limit ---

	limits := []struct {
		key string
		dst *int
		def int
	}{
		{"BFF_RATE_LIMIT_LOGIN_PER_IP", &cfg.LoginPerIP, 20},
		{"BFF_RATE_LIMIT_LOGIN_PER_EMAIL", &cfg.LoginPerEmail, 10},
		{"BFF_RATE_LIMIT_RECOVERY_PER_IP", &cfg.RecoveryPerIP, 10},
		{"BFF_RATE_LIMIT_RECOVERY_PER_EMAIL", &cfg.RecoveryPerEmail, 5},
	}
	for _, l := range limits {
		*l.dst, err = getEnvInt(l.key, l.def)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", l.key, err)
		}
		if *l.dst < 1 {
			return nil, fmt.Errorf("%s: значение %d должно быть положительным", l.key, *l.dst)
		}
	}

	cfg.LoginWindow, err = getEnvDuration("BFF_RATE_LIMIT_LOGIN_WINDOW", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("BFF_RATE_LIMIT_LOGIN_WINDOW: %w", err)
	}
	cfg.RecoveryWindow, err = getEnvDuration("BFF_RATE_LIMIT_RECOVERY_WINDOW", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("BFF_RATE_LIMIT_RECOVERY_WINDOW: %w", err)
	}
	if cfg.LoginWindow <= 0 || cfg.RecoveryWindow <= 0 {
		return nil, fmt.Errorf("BFF_RATE_LIMIT_*_WINDOW: окно должно быть положительным")
	}

	// --- Наблюдаемость ---

	cfg.DephealthGroup = getEnvDefault("BFF_DEPHEALTH_GROUP", "staffdesk")
	cfg.DephealthCheckInterval, err = getEnvDuration("BFF_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BFF_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.SentryDSN = getEnvDefault("BFF_SENTRY_DSN", "")
	cfg.OTelEndpoint = getEnvDefault("BFF_OTEL_ENDPOINT", "")
	cfg.OTelInsecure = getEnvDefault("BFF_OTEL_INSECURE", "false") == "true"

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("BFF_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BFF_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// IsProduction — true для BFF_ENV=production (Secure cookie).
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(slog.String("env", cfg.Env))
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvURL возвращает абсолютный http(s) URL без trailing slash.
// Для необязательной переменной пустое значение допустимо.
func getEnvURL(key string, required bool) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		if required {
			return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
		}
		return "", nil
	}
	u, err := url.Parse(val)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%s: некорректный URL %q", key, val)
	}
	return strings.TrimRight(val, "/"), nil
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
