// Пакет appscript — HTTP-клиент веб-приложения Apps Script.
// Каждый вызов — один POST {baseURL} с телом {internalToken, action, payload}.
// Поддерживает TLS с кастомным CA (BFF_APPSCRIPT_CA_CERT_PATH).
package appscript

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
)

// Коды ошибок уровня транспорта и формата ответа.
const (
	CodeTimeout         = "UPSTREAM_TIMEOUT"
	CodeFetchFailed     = "UPSTREAM_FETCH_FAILED"
	CodeHTTPError       = "UPSTREAM_HTTP_ERROR"
	CodeInvalidResponse = "UPSTREAM_INVALID_RESPONSE"
	CodeAppscriptError  = "APPSCRIPT_ERROR"
)

const (
	// maxBodySize — максимальный размер читаемого ответа.
	maxBodySize = 1 << 20
	// retryBackoff — пауза перед повторной попыткой.
	retryBackoff = 200 * time.Millisecond
)

// CallOptions — параметры одного вызова.
type CallOptions struct {
	// Timeout — жёсткий таймаут попытки, in-flight запрос отменяется
	Timeout time.Duration
	// Retry — разрешить одну повторную попытку при сетевой ошибке
	Retry bool
}

// Config — параметры клиента.
type Config struct {
	BaseURL       string
	InternalToken string
	// CACertPath — путь к CA-сертификату (пусто — системный пул)
	CACertPath string
	// WrapTransport — обёртка транспорта (трейсинг), может быть nil
	WrapTransport func(http.RoundTripper) http.RoundTripper
}

// Client — HTTP-клиент Apps Script. Безопасен для конкурентного использования.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	internalToken string
	backoff       time.Duration
	logger        *slog.Logger
}

// requestBody — тело запроса к Apps Script.
type requestBody struct {
	InternalToken string `json:"internalToken"`
	Action        string `json:"action"`
	Payload       any    `json:"payload"`
}

// New создаёт клиент Apps Script.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if cfg.CACertPath != "" {
		tlsConfig, err := buildTLSConfig(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата Apps Script: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат Apps Script добавлен в пул доверия",
			slog.String("ca_cert", cfg.CACertPath),
		)
	}

	var rt http.RoundTripper = transport
	if cfg.WrapTransport != nil {
		rt = cfg.WrapTransport(rt)
	}

	return &Client{
		// Таймаут задаётся контекстом каждого вызова
		httpClient:    &http.Client{Transport: rt},
		baseURL:       cfg.BaseURL,
		internalToken: cfg.InternalToken,
		backoff:       retryBackoff,
		logger:        logger.With(slog.String("component", "appscript_client")),
	}, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("файл %s не содержит PEM-сертификатов", caCertPath)
	}

	return &tls.Config{
		RootCAs:    caCertPool,
		MinVersion: tls.VersionTLS12,
	}, nil
}

// Call выполняет действие action. Ошибки не возвращаются: любой исход,
// включая сетевой сбой, описывается Result.
//
// Повтор выполняется не более одного раза и только для UPSTREAM_TIMEOUT
// и UPSTREAM_FETCH_FAILED: в этих случаях тело не дошло до Apps Script
// или ответ потерян, бизнес-ошибки никогда не повторяются.
func (c *Client) Call(ctx context.Context, action string, payload any, opts CallOptions) Result {
	res := c.attempt(ctx, action, payload, opts.Timeout)
	if !opts.Retry || !isRetryable(res.Code) {
		return res
	}

	c.logger.Warn("Повтор вызова Apps Script",
		slog.String("action", action),
		slog.String("code", res.Code),
	)

	timer := time.NewTimer(c.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return res
	case <-timer.C:
	}

	return c.attempt(ctx, action, payload, opts.Timeout)
}

// attempt — одна попытка вызова под собственным таймаутом.
func (c *Client) attempt(ctx context.Context, action string, payload any, timeout time.Duration) Result {
	body, err := json.Marshal(requestBody{
		InternalToken: c.internalToken,
		Action:        action,
		Payload:       payload,
	})
	if err != nil {
		return failure(CodeFetchFailed, fmt.Sprintf("encode payload: %v", err), 0)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return failure(CodeFetchFailed, fmt.Sprintf("build request: %v", err), 0)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportFailure(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return transportFailure(err)
	}
	if len(raw) > maxBodySize {
		return failure(CodeInvalidResponse, "Apps Script response too large", resp.StatusCode)
	}

	return Normalize(resp.StatusCode, raw)
}

// transportFailure классифицирует ошибку транспорта.
func transportFailure(err error) Result {
	if isTimeout(err) {
		return failure(CodeTimeout, "Apps Script request timed out", 0)
	}
	return failure(CodeFetchFailed, "Apps Script request failed", 0)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isRetryable(code string) bool {
	return code == CodeTimeout || code == CodeFetchFailed
}
