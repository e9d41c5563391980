package db

import (
	"context"
	"database/sql"
	"fmt"

	"sms-relay-server/internal/models"
)

// MatchCandidate is a message row joined with any successful verification
// already recorded against it. Nothing stops a second user from claiming an
// already-verified message; callers see the prior claim and decide.
type MatchCandidate struct {
	models.Message
	SuccessUserID *int64
}

// MessageRepository defines data access for the sms table.
//
// Exists matches exactly on (sender, content) with no time bound; the
// ingestion dedup probe in ExistsSince is bounded to a window. The two are
// deliberately distinct operations.
type MessageRepository interface {
	Exists(ctx context.Context, sender, content string) (bool, error)
	ExistsSince(ctx context.Context, sender, content, since string) (bool, error)
	Insert(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id int64) (*models.Message, error)
	MarkDeleted(ctx context.Context, id int64) error
	MarkSent(ctx context.Context, ids []int64) error
	ListUnverified(ctx context.Context) ([]*models.Message, error)
	ListUnsent(ctx context.Context, limit int) ([]*models.Message, error)
	FindInWindow(ctx context.Context, fromMinute, toMinute string) ([]*MatchCandidate, error)
}

type messageRepository struct {
	database *Database
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(database *Database) MessageRepository {
	return &messageRepository{database: database}
}

const messageColumns = `id, status, sender, received_date, content, is_sent_to_telegram, verified_by, deleted_from_sim, created_at`

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	msg := &models.Message{}
	var content sql.NullString
	err := row.Scan(
		&msg.ID,
		&msg.Status,
		&msg.Sender,
		&msg.ReceivedDate,
		&content,
		&msg.SentToTelegram,
		&msg.VerifiedBy,
		&msg.DeletedFromSIM,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.Content = content.String
	return msg, nil
}

// Exists reports whether any row matches exactly on sender and content,
// regardless of when it was received.
func (r *messageRepository) Exists(ctx context.Context, sender, content string) (bool, error) {
	var found bool
	err := r.database.WithReadTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM sms WHERE sender = ? AND content = ? LIMIT 1`,
			sender, content,
		).Scan(&id)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to check message existence: %w", err)
		}
		found = true
		return nil
	})
	return found, err
}

// ExistsSince reports whether a row with the same sender and content was
// received at or after the given canonical timestamp.
func (r *messageRepository) ExistsSince(ctx context.Context, sender, content, since string) (bool, error) {
	var found bool
	err := r.database.WithReadTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM sms WHERE sender = ? AND content = ? AND received_date >= ? LIMIT 1`,
			sender, content, since,
		).Scan(&id)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to check message window: %w", err)
		}
		found = true
		return nil
	})
	return found, err
}

// Insert stores a new message row and sets msg.ID.
func (r *messageRepository) Insert(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}
	if msg.Sender == "" {
		return fmt.Errorf("message sender cannot be empty")
	}

	return r.database.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO sms (status, sender, received_date, content, is_sent_to_telegram, deleted_from_sim, created_at)
			 VALUES (?, ?, ?, ?, 0, 0, ?)`,
			msg.Status, msg.Sender, msg.ReceivedDate, msg.Content, msg.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get inserted message id: %w", err)
		}
		msg.ID = id
		return nil
	})
}

// GetByID retrieves a message by id, nil if absent.
func (r *messageRepository) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	var msg *models.Message
	err := r.database.WithReadTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+messageColumns+` FROM sms WHERE id = ?`, id)
		m, err := scanMessage(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get message by id: %w", err)
		}
		msg = m
		return nil
	})
	return msg, err
}

// MarkDeleted sets the soft-delete flag; the row itself is kept.
func (r *messageRepository) MarkDeleted(ctx context.Context, id int64) error {
	return r.database.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE sms SET deleted_from_sim = 1 WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to mark message deleted: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("message not found")
		}
		return nil
	})
}

// MarkSent flips the forwarded flag for the given ids in one transaction.
func (r *messageRepository) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	return r.database.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE sms SET is_sent_to_telegram = 1 WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare mark sent: %w", err)
		}
		defer stmt.Close()

		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				return fmt.Errorf("failed to mark message %d sent: %w", id, err)
			}
		}
		return nil
	})
}

// ListUnverified returns all messages no verification has claimed yet,
// oldest first.
func (r *messageRepository) ListUnverified(ctx context.Context) ([]*models.Message, error) {
	var messages []*models.Message
	err := r.database.WithReadTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT `+messageColumns+` FROM sms WHERE verified_by IS NULL ORDER BY received_date ASC`)
		if err != nil {
			return fmt.Errorf("failed to list unverified messages: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			msg, err := scanMessage(rows)
			if err != nil {
				return fmt.Errorf("failed to scan message: %w", err)
			}
			messages = append(messages, msg)
		}
		return rows.Err()
	})
	return messages, err
}

// ListUnsent returns messages not yet forwarded to the notification
// transport, grouped by sender then oldest first.
func (r *messageRepository) ListUnsent(ctx context.Context, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var messages []*models.Message
	err := r.database.WithReadTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT `+messageColumns+` FROM sms WHERE is_sent_to_telegram = 0 ORDER BY sender, received_date ASC LIMIT ?`,
			limit)
		if err != nil {
			return fmt.Errorf("failed to list unsent messages: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			msg, err := scanMessage(rows)
			if err != nil {
				return fmt.Errorf("failed to scan message: %w", err)
			}
			messages = append(messages, msg)
		}
		return rows.Err()
	})
	return messages, err
}

// FindInWindow returns messages whose received timestamp, truncated to
// minute precision, falls inside the inclusive window, regardless of sender.
// Each row carries the user id of any prior successful verification.
func (r *messageRepository) FindInWindow(ctx context.Context, fromMinute, toMinute string) ([]*MatchCandidate, error) {
	var candidates []*MatchCandidate
	err := r.database.WithReadTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT s.id, s.status, s.sender, s.received_date, s.content, s.is_sent_to_telegram,
			        s.verified_by, s.deleted_from_sim, s.created_at, v.user_id
			 FROM sms s
			 LEFT JOIN verification v ON v.sms_id = s.id AND v.status = 'success'
			 WHERE substr(s.received_date, 1, 16) >= ? AND substr(s.received_date, 1, 16) <= ?
			 ORDER BY s.received_date ASC`,
			fromMinute, toMinute)
		if err != nil {
			return fmt.Errorf("failed to query match window: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			c := &MatchCandidate{}
			var content sql.NullString
			err := rows.Scan(
				&c.ID,
				&c.Status,
				&c.Sender,
				&c.ReceivedDate,
				&content,
				&c.SentToTelegram,
				&c.VerifiedBy,
				&c.DeletedFromSIM,
				&c.CreatedAt,
				&c.SuccessUserID,
			)
			if err != nil {
				return fmt.Errorf("failed to scan match candidate: %w", err)
			}
			c.Content = content.String
			candidates = append(candidates, c)
		}
		return rows.Err()
	})
	return candidates, err
}
