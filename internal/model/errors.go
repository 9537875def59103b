package model

import (
	"fmt"
	"time"
)

// InvalidTokenError はトークンを正規化またはクレームにデコードできない場合のエラー。
type InvalidTokenError struct {
	Reason string
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *InvalidTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid token: %s: %v", e.Reason, e.Err)
	}
	return "invalid token: " + e.Reason
}

// Unwrap は原因エラーを返す。
func (e *InvalidTokenError) Unwrap() error {
	return e.Err
}

// ExpiredSessionError はクレームのデコードには成功したがexpを過ぎている場合のエラー。
type ExpiredSessionError struct {
	ExpiredAt time.Time
}

// Error はerrorインターフェースを実装する。
func (e *ExpiredSessionError) Error() string {
	return fmt.Sprintf("session expired at %s", e.ExpiredAt.UTC().Format(time.RFC3339))
}

// GatewayError は認証ゲートウェイの呼び出し失敗を表す。
// StatusCodeが0の場合はネットワークエラー（応答なし）を示す。
type GatewayError struct {
	StatusCode int
	Message    string // ゲートウェイが返したメッセージ（なければ空）
	Retryable  bool
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "gateway request failed"
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap は原因エラーを返す。
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, gateway, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeSessionExpired     = "SESSION_EXPIRED"
	ErrCodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
)

// NewInvalidCredentialsError は認証情報が拒否された場合のエラーを生成する。
// messageが空の場合は汎用メッセージを使う。
func NewInvalidCredentialsError(message string) *APIError {
	if message == "" {
		message = "Usuario o contraseña incorrectos."
	}
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  message,
		Category: "auth",
		Action:   "Verifica tus datos e inténtalo de nuevo.",
	}
}

// NewInvalidTokenError はゲートウェイが返したトークンを扱えない場合のエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "No se pudo validar la sesión devuelta por el servidor.",
		Category: "auth",
		Action:   "Inicia sesión de nuevo. Si el problema persiste, contacta con soporte.",
	}
}

// NewSessionExpiredError はセッション期限切れのエラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "Tu sesión ha expirado.",
		Category: "auth",
		Action:   "Inicia sesión de nuevo.",
	}
}

// NewGatewayUnavailableError はゲートウェイに到達できない場合のエラーを生成する。
func NewGatewayUnavailableError(message string) *APIError {
	if message == "" {
		message = "No se pudo contactar con el servidor de autenticación."
	}
	return &APIError{
		Code:     ErrCodeGatewayUnavailable,
		Message:  message,
		Category: "gateway",
		Action:   "Espera unos instantes y vuelve a intentarlo.",
	}
}

// NewInvalidRequestError はリクエスト形式が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Solicitud no válida: %s", reason),
		Category: "validation",
		Action:   "Introduce tu correo o usuario y tu contraseña.",
	}
}

// NewUnauthenticatedError は未ログインの場合のエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "No has iniciado sesión.",
		Category: "auth",
		Action:   "Inicia sesión para continuar.",
	}
}
