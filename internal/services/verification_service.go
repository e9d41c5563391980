package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"sms-relay-server/internal/db"
	"sms-relay-server/internal/metrics"
	"sms-relay-server/internal/models"
	"sms-relay-server/pkg/logger"

	"go.uber.org/zap"
)

const (
	// DefaultMaxRetries bounds the retry loop around ledger writes.
	DefaultMaxRetries = 3

	// claimLayout is the date/time format users submit claims in.
	claimLayout = "02/01/2006 15:04"
)

// ErrUserNotFound indicates the claimed external id has no user row.
var ErrUserNotFound = errors.New("user not found")

// VerificationService resolves user claims against the stored message corpus
// and keeps the verification ledger.
type VerificationService struct {
	verifications db.VerificationRepository
	messages      db.MessageRepository
	users         db.UserRepository
	marginMinutes int
	now           func() time.Time
}

// NewVerificationService creates a new VerificationService. marginMinutes is
// the tolerance window applied on the second matching pass of VerifyClaim.
func NewVerificationService(
	verifications db.VerificationRepository,
	messages db.MessageRepository,
	users db.UserRepository,
	marginMinutes int,
) *VerificationService {
	return &VerificationService{
		verifications: verifications,
		messages:      messages,
		users:         users,
		marginMinutes: marginMinutes,
		now:           time.Now,
	}
}

// FindByDetails scans stored messages for one whose content carries the
// claimed amount and whose received time falls within marginMinutes of the
// target, independent of sender. With margin 0 the window collapses to the
// target minute. Returns nil when nothing matches, when the date/time fails
// to parse, or when the scan itself errors; parse and storage failures are
// logged, never propagated.
func (s *VerificationService) FindByDetails(ctx context.Context, amount float64, date, clock string, marginMinutes int) *models.Message {
	target, err := time.ParseInLocation(claimLayout, date+" "+clock, time.Local)
	if err != nil {
		logger.Warn("failed to parse claim date/time",
			zap.String("date", date),
			zap.String("time", clock),
			zap.Error(err),
		)
		return nil
	}

	from, to := target, target
	if marginMinutes > 0 {
		margin := time.Duration(marginMinutes) * time.Minute
		from = target.Add(-margin)
		to = target.Add(margin)
	}

	candidates, err := s.messages.FindInWindow(ctx,
		from.Format(models.MinuteLayout),
		to.Format(models.MinuteLayout),
	)
	if err != nil {
		logger.Error("failed to scan match window", zap.Error(err))
		return nil
	}

	variants := amountVariants(amount)
	for _, c := range candidates {
		for _, v := range variants {
			if strings.Contains(c.Content, v) {
				msg := c.Message
				return &msg
			}
		}
	}
	return nil
}

// Record appends one ledger row with the default retry budget.
func (s *VerificationService) Record(ctx context.Context, userID int64, messageID *int64, outcome models.VerificationOutcome) error {
	return s.RecordWithRetries(ctx, userID, messageID, outcome, DefaultMaxRetries)
}

// RecordWithRetries appends one ledger row, retrying storage failures up to
// maxRetries times with no backoff. Errors are not classified; any failure
// is treated as possibly transient. Fails only after the budget is spent.
func (s *VerificationService) RecordWithRetries(ctx context.Context, userID int64, messageID *int64, outcome models.VerificationOutcome, maxRetries int) error {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	v := &models.Verification{
		UserID:     userID,
		MessageID:  messageID,
		Outcome:    outcome,
		VerifiedAt: s.now().Format(models.TimeLayout),
	}

	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err = s.verifications.Record(ctx, v); err == nil {
			metrics.Verifications.WithLabelValues(string(outcome)).Inc()
			return nil
		}
		logger.Warn("verification write failed",
			zap.Int64("user_id", userID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return fmt.Errorf("failed to record verification after %d attempts: %w", maxRetries, err)
}

// VerifyClaim resolves a user's claim ("I sent amount at date/time"): an
// exact-minute match is tried first, then a second pass with the configured
// margin. The outcome is recorded either way, a success linking the matched
// message. Returns the matched message, nil when the claim found nothing.
func (s *VerificationService) VerifyClaim(ctx context.Context, userID int64, amount float64, date, clock string) (*models.Message, error) {
	msg := s.FindByDetails(ctx, amount, date, clock, 0)
	if msg == nil && s.marginMinutes > 0 {
		msg = s.FindByDetails(ctx, amount, date, clock, s.marginMinutes)
	}

	outcome := models.OutcomeFailed
	var messageID *int64
	if msg != nil {
		outcome = models.OutcomeSuccess
		messageID = &msg.ID
	}

	if err := s.Record(ctx, userID, messageID, outcome); err != nil {
		return nil, err
	}
	return msg, nil
}

// FailedAttemptsToday counts the user's failed outcomes on today's
// server-local calendar date. The transport uses this for throttling.
func (s *VerificationService) FailedAttemptsToday(ctx context.Context, userID int64) (int, error) {
	day := s.now().Format("2006-01-02")
	return s.verifications.FailedCountOn(ctx, userID, day)
}

// LastSuccess returns the user's most recent successful verification with
// its linked message, nil if none.
func (s *VerificationService) LastSuccess(ctx context.Context, userID int64) (*models.VerificationDetail, error) {
	return s.verifications.LastSuccess(ctx, userID)
}

// HistoryFor returns the user's full verification history, newest first.
func (s *VerificationService) HistoryFor(ctx context.Context, userID int64) ([]*models.VerificationDetail, error) {
	return s.verifications.HistoryFor(ctx, userID)
}

// UserStats returns the user's success count and last success timestamp.
func (s *VerificationService) UserStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	return s.verifications.StatsFor(ctx, userID)
}

// ResolveUser maps an external id to the user row, ErrUserNotFound if absent.
func (s *VerificationService) ResolveUser(ctx context.Context, externalID string) (*models.User, error) {
	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// amountVariants returns the enumerated content renderings of an amount, in
// fixed priority order: plain integer, dot-decimal, comma-decimal. The
// integer form only applies to whole amounts. The rules stay enumerable on
// purpose; no general pattern inference.
func amountVariants(amount float64) []string {
	var variants []string
	if amount == math.Trunc(amount) {
		variants = append(variants, strconv.FormatInt(int64(amount), 10))
	}
	dot := strconv.FormatFloat(amount, 'f', 2, 64)
	variants = append(variants, dot, strings.Replace(dot, ".", ",", 1))
	return variants
}
