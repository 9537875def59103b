// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultMaxMessageLength はゲートウェイメッセージの最大文字数（ルーン数）。
const DefaultMaxMessageLength = 200

// MessageSanitizer は認証ゲートウェイが返すエラーメッセージを、
// ユーザーへ表示できる平文に整える。
// HTMLタグはすべて除去し（script, styleは中身ごと）、文字参照を元の文字に戻してから
// 空白を1つにまとめ、最大長で切り詰める。
// bluemondayのポリシーはスレッドセーフなため、並行して使用できる。
type MessageSanitizer struct {
	policy    *bluemonday.Policy
	maxLength int
}

// NewMessageSanitizer はMessageSanitizerを生成する。maxLengthが0以下の場合はデフォルト値を使う。
func NewMessageSanitizer(maxLength int) *MessageSanitizer {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	return &MessageSanitizer{
		policy:    bluemonday.StrictPolicy(),
		maxLength: maxLength,
	}
}

// SanitizeMessage はメッセージをサニタイズする。同一入力に対して常に同一出力を返す。
func (s *MessageSanitizer) SanitizeMessage(msg string) string {
	if msg == "" {
		return ""
	}
	if !utf8.ValidString(msg) {
		msg = strings.ToValidUTF8(msg, "")
	}

	// StrictPolicyはエスケープ済みHTMLを返すが、呼び出し側は平文として扱う
	plain := html.UnescapeString(s.policy.Sanitize(msg))
	cleaned := strings.Join(strings.Fields(plain), " ")

	if utf8.RuneCountInString(cleaned) > s.maxLength {
		runes := []rune(cleaned)
		cleaned = strings.TrimSpace(string(runes[:s.maxLength])) + "…"
	}
	return cleaned
}
