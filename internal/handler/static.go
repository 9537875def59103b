package handler

import (
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// NewStaticHandler はroot配下の静的ファイルを配信するハンドラーを返す。
// 存在しないパスはフロントエンドのルーティングに任せるためindex.htmlを返す。
// 拡張子付きのパスが見つからない場合は404とする。
func NewStaticHandler(root fs.FS) http.Handler {
	files := http.FileServerFS(root)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = "."
		}
		if _, err := fs.Stat(root, name); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || path.Ext(name) != "" {
				http.NotFound(w, r)
				return
			}
			http.ServeFileFS(w, r, root, "index.html")
			return
		}
		files.ServeHTTP(w, r)
	})
}
