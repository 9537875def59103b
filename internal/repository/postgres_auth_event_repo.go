package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tourbook/internal/model"
)

// DBTX は*sql.DBと*sql.Txの共通部分。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresAuthEventRepo はPostgreSQLを使用した監査イベントリポジトリ。
type PostgresAuthEventRepo struct {
	db  DBTX
	now func() time.Time
}

// NewPostgresAuthEventRepo はPostgresAuthEventRepoを生成する。
func NewPostgresAuthEventRepo(db DBTX) *PostgresAuthEventRepo {
	return &PostgresAuthEventRepo{db: db, now: time.Now}
}

// Insert は監査イベントを保存する。
func (r *PostgresAuthEventRepo) Insert(ctx context.Context, event *model.AuthEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_events (id, client_id, username, kind, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.ClientID, event.Username, string(event.Kind), event.Detail, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("監査イベントの保存に失敗しました: %w", err)
	}
	return nil
}

// DeleteOlderThan はcutoffより古いイベントを削除する。
func (r *PostgresAuthEventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM auth_events WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("監査イベントの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}
