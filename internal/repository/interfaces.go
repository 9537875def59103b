// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/tourbook/internal/model"
)

// AuthEventRepository は認証イベント監査ログの永続化インターフェース。
type AuthEventRepository interface {
	// Insert は監査イベントを1件保存する。
	// IDとCreatedAtが空の場合はリポジトリ側で採番する。
	Insert(ctx context.Context, event *model.AuthEvent) error

	// DeleteOlderThan はcutoffより前に作成されたイベントを削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
