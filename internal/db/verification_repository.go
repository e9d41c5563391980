package db

import (
	"context"
	"database/sql"
	"fmt"

	"sms-relay-server/internal/models"
)

// VerificationRepository defines data access for the verification ledger.
type VerificationRepository interface {
	// Record appends one ledger row. A successful outcome also stamps the
	// matched message's verified_by back-reference, in the same transaction.
	Record(ctx context.Context, v *models.Verification) error
	FailedCountOn(ctx context.Context, userID int64, day string) (int, error)
	LastSuccess(ctx context.Context, userID int64) (*models.VerificationDetail, error)
	HistoryFor(ctx context.Context, userID int64) ([]*models.VerificationDetail, error)
	StatsFor(ctx context.Context, userID int64) (*models.UserStats, error)
}

type verificationRepository struct {
	database *Database
}

// NewVerificationRepository creates a new VerificationRepository.
func NewVerificationRepository(database *Database) VerificationRepository {
	return &verificationRepository{database: database}
}

func (r *verificationRepository) Record(ctx context.Context, v *models.Verification) error {
	if v == nil {
		return fmt.Errorf("verification cannot be nil")
	}
	if v.UserID == 0 {
		return fmt.Errorf("verification user id is required")
	}
	if !v.Outcome.Valid() {
		return fmt.Errorf("invalid verification outcome: %q", v.Outcome)
	}

	return r.database.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO verification (user_id, sms_id, status, verified_at) VALUES (?, ?, ?, ?)`,
			v.UserID, v.MessageID, v.Outcome, v.VerifiedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to record verification: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get verification id: %w", err)
		}
		v.ID = id

		if v.Outcome == models.OutcomeSuccess && v.MessageID != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE sms SET verified_by = ? WHERE id = ?`, v.UserID, *v.MessageID); err != nil {
				return fmt.Errorf("failed to set message verified_by: %w", err)
			}
		}
		return nil
	})
}

// FailedCountOn counts failed outcomes for the user on the given calendar
// day (canonical date prefix, server-local).
func (r *verificationRepository) FailedCountOn(ctx context.Context, userID int64, day string) (int, error) {
	var count int
	err := r.database.WithReadTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM verification
			 WHERE user_id = ? AND status = 'failed' AND substr(verified_at, 1, 10) = ?`,
			userID, day,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to count failed verifications: %w", err)
		}
		return nil
	})
	return count, err
}

const detailColumns = `v.id, v.user_id, v.sms_id, v.status, v.verified_at, s.sender, s.content, s.received_date`

func scanDetail(row interface{ Scan(...any) error }) (*models.VerificationDetail, error) {
	d := &models.VerificationDetail{}
	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.MessageID,
		&d.Outcome,
		&d.VerifiedAt,
		&d.MessageSender,
		&d.MessageContent,
		&d.MessageReceivedDate,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// LastSuccess returns the user's most recent successful verification joined
// with the linked message, nil if the user has none.
func (r *verificationRepository) LastSuccess(ctx context.Context, userID int64) (*models.VerificationDetail, error) {
	var detail *models.VerificationDetail
	err := r.database.WithReadTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+detailColumns+`
			 FROM verification v
			 LEFT JOIN sms s ON s.id = v.sms_id
			 WHERE v.user_id = ? AND v.status = 'success'
			 ORDER BY v.verified_at DESC, v.id DESC
			 LIMIT 1`,
			userID)
		d, err := scanDetail(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get last success: %w", err)
		}
		detail = d
		return nil
	})
	return detail, err
}

// HistoryFor returns every verification attempt by the user, newest first.
func (r *verificationRepository) HistoryFor(ctx context.Context, userID int64) ([]*models.VerificationDetail, error) {
	var history []*models.VerificationDetail
	err := r.database.WithReadTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT `+detailColumns+`
			 FROM verification v
			 LEFT JOIN sms s ON s.id = v.sms_id
			 WHERE v.user_id = ?
			 ORDER BY v.verified_at DESC, v.id DESC`,
			userID)
		if err != nil {
			return fmt.Errorf("failed to get verification history: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			d, err := scanDetail(rows)
			if err != nil {
				return fmt.Errorf("failed to scan verification: %w", err)
			}
			history = append(history, d)
		}
		return rows.Err()
	})
	return history, err
}

// StatsFor returns the success count and most recent success timestamp for
// the user.
func (r *verificationRepository) StatsFor(ctx context.Context, userID int64) (*models.UserStats, error) {
	stats := &models.UserStats{}
	err := r.database.WithReadTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*), MAX(verified_at) FROM verification
			 WHERE user_id = ? AND status = 'success'`,
			userID,
		).Scan(&stats.SuccessfulVerifications, &stats.LastActivity)
		if err != nil {
			return fmt.Errorf("failed to get user stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
