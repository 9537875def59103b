// Package gateway はリモートAPIゲートウェイとの通信を提供する。
// ログイン呼び出し（RESTまたはGraphQL）と、Bearer認証付きAPIプロキシを含む。
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/tourbook/internal/model"
)

const (
	// ModeREST はREST エンドポイントでログインする。
	ModeREST = "rest"
	// ModeGraphQL はGraphQLミューテーションでログインする。
	ModeGraphQL = "graphql"

	tracerName = "github.com/hitoshi/tourbook/internal/gateway"

	// maxResponseSize はログイン応答として読み取る最大バイト数。
	maxResponseSize = 1 << 20
)

// MessageSanitizer はゲートウェイが返すメッセージを表示用に無害化する。
type MessageSanitizer interface {
	SanitizeMessage(msg string) string
}

// LatencyRecorder はゲートウェイ呼び出しのレイテンシを記録する。
type LatencyRecorder interface {
	RecordGatewayLatency(operation string, duration time.Duration)
}

// Config はゲートウェイクライアントの設定。
type Config struct {
	BaseURL     string
	Mode        string // "rest" または "graphql"
	LoginPath   string // REST時のログインパス（デフォルト: /auth/login）
	GraphQLPath string // GraphQL時のエンドポイントパス（デフォルト: /graphql）
}

// Client は認証ゲートウェイのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     Config
	sanitizer  MessageSanitizer
	latency    LatencyRecorder
	tracer     trace.Tracer
}

// Option はClientの任意設定。
type Option func(*Client)

// WithSanitizer はエラーメッセージのサニタイザーを設定する。
func WithSanitizer(s MessageSanitizer) Option {
	return func(c *Client) { c.sanitizer = s }
}

// WithLatencyRecorder はレイテンシの記録先を設定する。
func WithLatencyRecorder(r LatencyRecorder) Option {
	return func(c *Client) { c.latency = r }
}

// NewClient はClientを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, config Config, opts ...Option) *Client {
	if config.Mode == "" {
		config.Mode = ModeREST
	}
	if config.LoginPath == "" {
		config.LoginPath = "/auth/login"
	}
	if config.GraphQLPath == "" {
		config.GraphQLPath = "/graphql"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	c := &Client{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate は認証情報をゲートウェイに送信し、生のアクセストークンを取得する。
// 失敗時は *model.GatewayError を返す。ネットワークエラー、429、5xxはRetryable。
func (c *Client) Authenticate(ctx context.Context, creds model.Credentials) (*model.LoginResult, error) {
	ctx, span := c.tracer.Start(ctx, "gateway.authenticate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("gateway.mode", c.config.Mode)),
	)
	defer span.End()

	start := time.Now()
	var (
		result *model.LoginResult
		err    error
	)
	switch c.config.Mode {
	case ModeGraphQL:
		result, err = c.authenticateGraphQL(ctx, creds)
	default:
		result, err = c.authenticateREST(ctx, creds)
	}

	if c.latency != nil {
		c.latency.RecordGatewayLatency("authenticate", time.Since(start))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authentication failed")
		return nil, err
	}
	return result, nil
}

func (c *Client) authenticateREST(ctx context.Context, creds model.Credentials) (*model.LoginResult, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return nil, &model.GatewayError{Err: fmt.Errorf("failed to encode credentials: %w", err)}
	}

	status, respBody, err := c.post(ctx, c.config.LoginPath, body)
	if err != nil {
		return nil, err
	}

	if status < 200 || status > 299 {
		return nil, c.statusError(status, extractMessage(respBody))
	}

	var result model.LoginResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &model.GatewayError{StatusCode: status, Err: fmt.Errorf("malformed login response: %w", err)}
	}
	if result.AccessToken == "" {
		return nil, &model.GatewayError{StatusCode: status, Err: errors.New("login response without access_token")}
	}
	return &result, nil
}

// post はJSONボディをPOSTし、ステータスコードとボディを返す。
// ネットワークエラーはRetryableなGatewayErrorに変換する。
func (c *Client) post(ctx context.Context, path string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, &model.GatewayError{Err: fmt.Errorf("failed to build gateway request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("gateway request failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return 0, nil, &model.GatewayError{Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, &model.GatewayError{
			StatusCode: resp.StatusCode,
			Retryable:  true,
			Err:        fmt.Errorf("failed to read gateway response: %w", err),
		}
	}

	if resp.StatusCode >= 400 {
		c.logger.Warn("gateway returned error status",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
	}
	return resp.StatusCode, respBody, nil
}

// statusError は非2xx応答をGatewayErrorに変換する。
func (c *Client) statusError(status int, message string) *model.GatewayError {
	return &model.GatewayError{
		StatusCode: status,
		Message:    c.sanitize(message),
		Retryable:  IsRetryableStatus(status),
	}
}

func (c *Client) sanitize(msg string) string {
	if c.sanitizer == nil || msg == "" {
		return msg
	}
	return c.sanitizer.SanitizeMessage(msg)
}

// IsRetryableStatus は再試行で回復しうるステータスかを返す（429と5xx）。
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// extractMessage はエラー応答ボディから人が読めるメッセージを取り出す。
// {"message": "..."}、{"message": ["...", ...]}、{"error": "..."} の形式に対応する。
func extractMessage(body []byte) string {
	var parsed struct {
		Message json.RawMessage `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	for _, raw := range []json.RawMessage{parsed.Message, parsed.Error} {
		if len(raw) == 0 {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
			return strings.Join(list, "; ")
		}
	}
	return ""
}

// String はログ出力用の簡易表現を返す。
func (c *Client) String() string {
	return fmt.Sprintf("gateway(%s %s)", c.config.Mode, c.config.BaseURL)
}
