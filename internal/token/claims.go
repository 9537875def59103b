package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/tourbook/internal/model"
)

// payload はJWTペイロードのデコード先。
// 必須クレームの欠落を検出できるよう、ポインタで受ける。
type payload struct {
	jwt.RegisteredClaims
	RawID    any       `json:"id"`
	Name     *string   `json:"name"`
	Username *string   `json:"username"`
	Email    *string   `json:"email"`
	Roles    *[]string `json:"roles"`
}

// Parser は標準形式トークンをmodel.Claimsにデコードする。
// verifyKeyが設定されている場合はHS256署名も検証する。
// 未設定の場合は署名を検証しない（署名鍵はゲートウェイのみが保持する）。
type Parser struct {
	verifyKey []byte
}

// NewParser はParserを生成する。verifyKeyはnilでもよい。
func NewParser(verifyKey []byte) *Parser {
	return &Parser{verifyKey: verifyKey}
}

// ParseClaims は標準形式トークンのペイロードをスキーマ検証付きでデコードする。
// 有効期限の判定は行わない（ValidateClaimsを使うこと）。
// 失敗時は *model.InvalidTokenError を返す。
func (p *Parser) ParseClaims(standard string) (model.Claims, error) {
	if !IsStandardForm(standard) {
		return model.Claims{}, &model.InvalidTokenError{Reason: "not a standard-form token"}
	}

	var pl payload
	if len(p.verifyKey) > 0 {
		_, err := jwt.ParseWithClaims(standard, &pl, func(t *jwt.Token) (any, error) {
			return p.verifyKey, nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		)
		if err != nil {
			return model.Claims{}, &model.InvalidTokenError{Reason: "signature verification failed", Err: err}
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(standard, &pl); err != nil {
			return model.Claims{}, &model.InvalidTokenError{Reason: "undecodable payload", Err: err}
		}
	}

	return pl.toClaims()
}

// Verify はParseClaimsとValidateClaimsをまとめて行う。
// ルートガードのように、永続化済みの標準形式トークンだけを扱う経路で使用する。
// XOR/base64のアンラップは行わない。
func (p *Parser) Verify(standard string, now time.Time) (model.Claims, error) {
	claims, err := p.ParseClaims(standard)
	if err != nil {
		return model.Claims{}, err
	}
	if err := ValidateClaims(claims, now); err != nil {
		return model.Claims{}, err
	}
	return claims, nil
}

// ValidateClaims はセッションストアとルートガードで共有する、状態を持たない検証ルーチン。
// 有効期限切れの場合は *model.ExpiredSessionError を返す。
func ValidateClaims(c model.Claims, now time.Time) error {
	if c.ExpiresAt.IsZero() {
		return &model.InvalidTokenError{Reason: "missing exp claim"}
	}
	if c.Username == "" || c.Email == "" {
		return &model.InvalidTokenError{Reason: "missing identity claims"}
	}
	if c.IsExpired(now) {
		return &model.ExpiredSessionError{ExpiredAt: c.ExpiresAt}
	}
	return nil
}

func (pl *payload) toClaims() (model.Claims, error) {
	var missing []string
	if pl.Name == nil {
		missing = append(missing, "name")
	}
	if pl.Username == nil || *pl.Username == "" {
		missing = append(missing, "username")
	}
	if pl.Email == nil || *pl.Email == "" {
		missing = append(missing, "email")
	}
	if pl.Roles == nil {
		missing = append(missing, "roles")
	}
	if pl.ExpiresAt == nil {
		missing = append(missing, "exp")
	}
	if len(missing) > 0 {
		return model.Claims{}, &model.InvalidTokenError{
			Reason: "missing claims: " + strings.Join(missing, ", "),
		}
	}

	roles := make([]model.Role, 0, len(*pl.Roles))
	seen := make(map[model.Role]bool, len(*pl.Roles))
	for _, r := range *pl.Roles {
		role, ok := model.ParseRole(r)
		if !ok {
			return model.Claims{}, &model.InvalidTokenError{Reason: fmt.Sprintf("unknown role %q", r)}
		}
		if !seen[role] {
			seen[role] = true
			roles = append(roles, role)
		}
	}

	id, err := pl.identifier()
	if err != nil {
		return model.Claims{}, err
	}

	return model.Claims{
		ID:        id,
		Name:      *pl.Name,
		Username:  *pl.Username,
		Email:     *pl.Email,
		Roles:     roles,
		ExpiresAt: pl.ExpiresAt.Time,
	}, nil
}

// identifier は "id" を優先し、なければ "sub" を返す。
// ゲートウェイによってはidを数値で返すため、文字列と数値の両方を受け付ける。
func (pl *payload) identifier() (string, error) {
	switch v := pl.RawID.(type) {
	case nil:
		return pl.Subject, nil
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", &model.InvalidTokenError{Reason: "id claim has unsupported type"}
	}
}

// IsInvalid はerrがトークン不正または期限切れかどうかを返す。
// 受動的なチェック（復元・ルートガード）で失敗を握りつぶす判断に使う。
func IsInvalid(err error) bool {
	var invalid *model.InvalidTokenError
	var expired *model.ExpiredSessionError
	return errors.As(err, &invalid) || errors.As(err, &expired)
}
