package gateway

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
)

// TokenSource はリクエストから転送すべきBearerトークンを返す。
// トークンがない場合は空文字列を返す。
type TokenSource func(r *http.Request) string

// NewAPIProxy はstripPrefix配下のリクエストをゲートウェイへ転送するハンドラーを返す。
// TokenSourceがトークンを返した場合は Authorization: Bearer を付与する。
// ブラウザのCookieはゲートウェイへ転送しない。
func NewAPIProxy(target *url.URL, stripPrefix string, tokens TokenSource, logger *slog.Logger) http.Handler {
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.URL.Path = singleJoin(target.Path, strings.TrimPrefix(pr.In.URL.Path, stripPrefix))
			pr.Out.URL.RawPath = ""
			pr.Out.Host = target.Host
			pr.Out.Header.Del("Cookie")
			pr.Out.Header.Del("Authorization")
			if tok := tokens(pr.In); tok != "" {
				pr.Out.Header.Set("Authorization", "Bearer "+tok)
			}
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("gateway proxy error",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			http.Error(w, "bad gateway", http.StatusBadGateway)
		},
	}
	return proxy
}

func singleJoin(base, p string) string {
	switch {
	case p == "":
		if base == "" {
			return "/"
		}
		return base
	case strings.HasSuffix(base, "/") && strings.HasPrefix(p, "/"):
		return base + p[1:]
	case !strings.HasSuffix(base, "/") && !strings.HasPrefix(p, "/"):
		return base + "/" + p
	default:
		return base + p
	}
}
