package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/tourbook/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "Se ha producido un error interno.",
		Category: "system",
		Action:   "Espera unos instantes y vuelve a intentarlo.",
	})
}

// MapLoginError はログイン操作のエラーをHTTPステータスとAPIErrorに変換する。
// ゲートウェイがメッセージを返した場合はそれを優先する。
// 変換できないエラーは500として扱う。
func MapLoginError(err error) (int, *model.APIError) {
	var (
		gwErr      *model.GatewayError
		invalidErr *model.InvalidTokenError
		expiredErr *model.ExpiredSessionError
		apiErr     *model.APIError
	)
	switch {
	case errors.As(err, &gwErr):
		if gwErr.Retryable || gwErr.StatusCode == 0 {
			return http.StatusBadGateway, model.NewGatewayUnavailableError(gwErr.Message)
		}
		if gwErr.StatusCode == http.StatusBadRequest {
			return http.StatusBadRequest, model.NewInvalidCredentialsError(gwErr.Message)
		}
		return http.StatusUnauthorized, model.NewInvalidCredentialsError(gwErr.Message)
	case errors.As(err, &expiredErr):
		return http.StatusUnauthorized, model.NewSessionExpiredError()
	case errors.As(err, &invalidErr):
		return http.StatusBadGateway, model.NewInvalidTokenError()
	case errors.As(err, &apiErr):
		return http.StatusBadRequest, apiErr
	default:
		return http.StatusInternalServerError, &model.APIError{
			Code:     "INTERNAL_ERROR",
			Message:  "Se ha producido un error interno.",
			Category: "system",
			Action:   "Espera unos instantes y vuelve a intentarlo.",
		}
	}
}

// csrfError はCSRF検証失敗時のエラー。
func csrfError() *model.APIError {
	return &model.APIError{
		Code:     "CSRF_FAILED",
		Message:  "La solicitud no se pudo verificar.",
		Category: "auth",
		Action:   "Recarga la página e inténtalo de nuevo.",
	}
}
