package model

// Credentials はログインフォームから受け取る認証情報。
// Identifierはメールアドレスまたはユーザー名。
type Credentials struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// GatewayUser はゲートウェイのログイン応答に含まれるユーザー情報。
// セッションのUserはトークンのクレームから作るため、参考情報として扱う。
// IDはゲートウェイによって数値または文字列で返る。
type GatewayUser struct {
	ID       any      `json:"id,omitempty"`
	Name     string   `json:"name"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// LoginResult はゲートウェイのログイン成功応答。
// AccessTokenはラップされている可能性がある生のトークン。
type LoginResult struct {
	AccessToken string       `json:"access_token"`
	User        *GatewayUser `json:"user,omitempty"`
}
