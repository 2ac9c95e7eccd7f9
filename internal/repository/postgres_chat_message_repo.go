package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/aira/internal/model"
)

// PostgresChatMessageRepo はPostgreSQLを使用したチャットログリポジトリ。
type PostgresChatMessageRepo struct {
	db *sql.DB
}

// NewPostgresChatMessageRepo はPostgresChatMessageRepoを生成する。
func NewPostgresChatMessageRepo(db *sql.DB) *PostgresChatMessageRepo {
	return &PostgresChatMessageRepo{db: db}
}

// Append はメッセージを1件追記する。
func (r *PostgresChatMessageRepo) Append(ctx context.Context, msg *model.ChatMessage) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("invalid chat role: %q", msg.Role)
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, user_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.UserID, string(msg.Role), msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}
	return nil
}

// ListByUserID はユーザーの直近limit件を作成順（古い順）で返す。
func (r *PostgresChatMessageRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, role, content, created_at FROM (
			SELECT id, user_id, role, content, created_at
			FROM chat_messages
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.ChatMessage
	for rows.Next() {
		m := &model.ChatMessage{}
		var role string
		if err := rows.Scan(&m.ID, &m.UserID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		m.Role = model.Role(role)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat messages: %w", err)
	}

	return messages, nil
}

// compile-time interface check
var _ ChatMessageRepository = (*PostgresChatMessageRepo)(nil)
