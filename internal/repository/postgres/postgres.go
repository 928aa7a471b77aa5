package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"chatrelay/internal/domain"
	"chatrelay/internal/repository"
)

type MessageRepo struct {
	DB *sql.DB
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, type, status, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.Type, msg.Status, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, messageID string) (*domain.Message, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, content, type, status, ts
		FROM messages
		WHERE id = $1
	`, messageID)

	var m domain.Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Type, &m.Status, &m.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return &m, nil
}

func (r *MessageRepo) GetByConversationPaginated(ctx context.Context, conversationID string, limit int, before *float64) ([]*domain.Message, error) {
	if limit < 0 {
		limit = 0
	}

	// seq is a bigserial insert counter; ordering by it ascending inside equal
	// timestamps keeps insertion order stable.
	query := `
		SELECT id, conversation_id, sender_id, content, type, status, ts
		FROM messages
		WHERE conversation_id = $1`
	args := []interface{}{conversationID}

	if before != nil {
		query += ` AND ts < $2`
		args = append(args, *before)
	}
	query += fmt.Sprintf(` ORDER BY ts DESC, seq ASC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Type, &m.Status, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *MessageRepo) UpdateStatus(ctx context.Context, conversationID string, upd repository.StatusUpdate) (int, error) {
	query := `
		UPDATE messages
		SET status = $1
		WHERE conversation_id = $2 AND status <> $1`
	args := []interface{}{upd.Status, conversationID}

	if upd.MessageIDs != nil {
		args = append(args, pq.Array(upd.MessageIDs))
		query += fmt.Sprintf(` AND id = ANY($%d)`, len(args))
	}
	if upd.Before != nil {
		args = append(args, *upd.Before)
		query += fmt.Sprintf(` AND ts < $%d`, len(args))
	}
	if upd.SenderID != "" {
		args = append(args, upd.SenderID)
		query += fmt.Sprintf(` AND sender_id = $%d`, len(args))
	}

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update message status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

type UserRepo struct {
	DB *sql.DB
}

func (r *UserRepo) Create(ctx context.Context, user *domain.User) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO users (id, name, username, status)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Name, user.Username, user.Status)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	return r.get(ctx, `SELECT id, name, username, status FROM users WHERE id = $1`, userID)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.get(ctx, `SELECT id, name, username, status FROM users WHERE username = $1`, username)
}

func (r *UserRepo) get(ctx context.Context, query, arg string) (*domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Username, &u.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", arg, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (r *UserRepo) GetAll(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, name, username, status FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []*domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Username, &u.Status); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (r *UserRepo) UpdateStatus(ctx context.Context, userID string, status domain.UserStatus) (*domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, `
		UPDATE users SET status = $1 WHERE id = $2
		RETURNING id, name, username, status
	`, status, userID).Scan(&u.ID, &u.Name, &u.Username, &u.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update user status: %w", err)
	}
	return &u, nil
}

type ConversationRepo struct {
	DB *sql.DB
}

func (r *ConversationRepo) Create(ctx context.Context, conv *domain.Conversation) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, name, creator_id, created_at, type)
		VALUES ($1, $2, $3, $4, $5)
	`, conv.ID, conv.Name, conv.CreatorID, conv.CreatedAt, conv.Type)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	for _, memberID := range conv.MemberIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversation_members (conversation_id, user_id)
			VALUES ($1, $2) ON CONFLICT DO NOTHING
		`, conv.ID, memberID)
		if err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
	}
	return tx.Commit()
}

func (r *ConversationRepo) GetByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, name, creator_id, created_at, type
		FROM conversations WHERE id = $1
	`, conversationID).Scan(&c.ID, &c.Name, &c.CreatorID, &c.CreatedAt, &c.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT user_id FROM conversation_members WHERE conversation_id = $1
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		c.MemberIDs = append(c.MemberIDs, id)
	}
	return &c, rows.Err()
}

func (r *ConversationRepo) GetForUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT c.id FROM conversations c
		JOIN conversation_members m ON m.conversation_id = c.id
		WHERE m.user_id = $1
		ORDER BY c.created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*domain.Conversation, 0, len(ids))
	for _, id := range ids {
		c, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *ConversationRepo) HasMember(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`, conversationID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check conversation: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}

	var member bool
	err = r.DB.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM conversation_members
			WHERE conversation_id = $1 AND user_id = $2
			UNION
			SELECT 1 FROM conversations
			WHERE id = $1 AND creator_id = $2
		)
	`, conversationID, userID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return member, nil
}
