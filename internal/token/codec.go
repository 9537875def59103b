// Package token はゲートウェイが発行する認証トークンの正規化とクレーム検証を提供する。
//
// ゲートウェイはデプロイ設定により、素のJWT、base64で再エンコードしたJWT、
// 共有シークレットとのXORで難読化した後にbase64化したJWTのいずれかを返す。
// Codecはこれら3形式を透過的に標準形式（header.payload.signature）へ正規化する。
package token

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/tourbook/internal/model"
)

// IsStandardForm は"."で分割した結果がちょうど3つの空でないセグメントで、
// 各セグメントが [A-Za-z0-9-_+/=] のみで構成される場合にtrueを返す。
func IsStandardForm(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
		for i := 0; i < len(part); i++ {
			if !isSegmentByte(part[i]) {
				return false
			}
		}
	}
	return true
}

func isSegmentByte(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_', c == '+', c == '/', c == '=':
		return true
	default:
		return false
	}
}

// Codec は生のトークン文字列を標準形式へ正規化する。
// 生成後は不変のため、複数のgoroutineから安全に利用できる。
type Codec struct {
	secret []byte
}

// NewCodec は共有シークレットを指定してCodecを生成する。
// シークレットが空の場合、XOR形式のトークンは常に拒否される。
func NewCodec(sharedSecret string) *Codec {
	return &Codec{secret: []byte(sharedSecret)}
}

// Normalize は生のトークンを標準形式に正規化する。
// 正規化できない場合は *model.InvalidTokenError を返す。
// 標準形式の入力はそのまま返す（冪等）。
func (c *Codec) Normalize(raw string) (string, error) {
	if raw == "" {
		return "", &model.InvalidTokenError{Reason: "empty token"}
	}

	// 1. 既に標準形式
	if IsStandardForm(raw) {
		return raw, nil
	}

	// 2. URL-safe base64（パディング欠落あり）としてデコード
	decoded, err := decodeLooseBase64(raw)
	if err != nil {
		return "", &model.InvalidTokenError{Reason: "malformed base64 wrapper", Err: err}
	}

	// 3. base64で包んだだけのトークン
	if IsStandardForm(string(decoded)) {
		return string(decoded), nil
	}

	// 4. XORで難読化されたトークン
	if len(c.secret) == 0 {
		return "", &model.InvalidTokenError{Reason: "obfuscated token but no shared secret configured"}
	}
	plain := xorBytes(decoded, c.secret)
	if !utf8.Valid(plain) {
		return "", &model.InvalidTokenError{Reason: "deobfuscated token is not valid UTF-8"}
	}
	if !IsStandardForm(string(plain)) {
		return "", &model.InvalidTokenError{Reason: "deobfuscated token is not a standard-form token"}
	}
	return string(plain), nil
}

// Wrap はNormalizeの逆変換で、標準形式のトークンをXOR+URL-safe base64で包む。
// ゲートウェイのスタブやテストで使用する。シークレットが空の場合はbase64化のみ行う。
func (c *Codec) Wrap(standard string) string {
	b := []byte(standard)
	if len(c.secret) > 0 {
		b = xorBytes(b, c.secret)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// decodeLooseBase64 は "-"→"+", "_"→"/" を置換し、4の倍数まで"="で埋めてからデコードする。
func decodeLooseBase64(s string) ([]byte, error) {
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	return base64.StdEncoding.DecodeString(s)
}

// xorBytes はdataの各バイトをkeyの繰り返しとXORした新しいスライスを返す。
func xorBytes(data, key []byte) []byte {
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ key[i%len(key)]
	}
	return out
}
