package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/chatpipe/chatpipe/internal/errors"
	"github.com/chatpipe/chatpipe/internal/models"
)

// UpsertConversation writes the finalized conversation for a completed turn.
// Idempotent under redelivery: repeated calls for the same sessionId produce
// the same stored messages, only persistedAt/lastActivity advance.
func (s *Store) UpsertConversation(ctx context.Context, conv *models.Conversation) error {
	messagesJSON, err := json.Marshal(conv.Messages)
	if err != nil {
		return errors.Wrap(err, errors.ErrStoreError)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO history_conversations (session_id, user_id, title, created_at, last_activity, persisted_at, messages)
		VALUES ($1, $2, $3, $4, $5, NOW(), $6)
		ON CONFLICT (session_id) DO UPDATE SET
			title         = CASE WHEN history_conversations.title = '' THEN EXCLUDED.title ELSE history_conversations.title END,
			last_activity = EXCLUDED.last_activity,
			persisted_at  = NOW(),
			messages      = EXCLUDED.messages
	`, conv.SessionID, conv.UserID, conv.Title, conv.CreatedAt, conv.LastActivity, messagesJSON)
	if err != nil {
		return errors.Wrap(err, errors.ErrStoreError)
	}
	return nil
}

// SetTitle sets the title for an existing conversation, used by History
// Reader's rename endpoint. History Writer sets the first title through
// UpsertConversation instead.
func (s *Store) SetTitle(ctx context.Context, userID, sessionID, title string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE history_conversations SET title = $3, last_activity = NOW()
		WHERE session_id = $1 AND user_id = $2
	`, sessionID, userID, title)
	if err != nil {
		return errors.Wrap(err, errors.ErrStoreError)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrConversationNotFound, "conversation not found")
	}
	return nil
}

// GetConversation returns the full stored conversation, 404 on a
// cross-partition read (wrong userId).
func (s *Store) GetConversation(ctx context.Context, userID, sessionID string) (*models.Conversation, error) {
	var conv models.Conversation
	var messagesJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT session_id, user_id, title, created_at, last_activity, messages
		FROM history_conversations
		WHERE session_id = $1 AND user_id = $2
	`, sessionID, userID).Scan(&conv.SessionID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.LastActivity, &messagesJSON)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.New(errors.ErrConversationNotFound, "conversation not found")
		}
		return nil, errors.Wrap(err, errors.ErrStoreError)
	}
	if err := json.Unmarshal(messagesJSON, &conv.Messages); err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreError)
	}
	return &conv, nil
}

// ListConversations returns metadata ordered by lastActivity desc, scoped to
// one userId partition.
func (s *Store) ListConversations(ctx context.Context, userID string, limit, offset int) ([]models.ConversationMeta, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, title, last_activity, jsonb_array_length(messages)
		FROM history_conversations
		WHERE user_id = $1
		ORDER BY last_activity DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreError)
	}
	defer rows.Close()

	var out []models.ConversationMeta
	for rows.Next() {
		var m models.ConversationMeta
		if err := rows.Scan(&m.SessionID, &m.Title, &m.LastActivity, &m.MessageCount); err != nil {
			return nil, errors.Wrap(err, errors.ErrStoreError)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreError)
	}
	return out, nil
}
