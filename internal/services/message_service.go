package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sms-relay-server/internal/db"
	"sms-relay-server/internal/metrics"
	"sms-relay-server/internal/models"
	"sms-relay-server/pkg/logger"

	"go.uber.org/zap"
)

// DedupWindow is how far back the ingestion path looks for a repeated
// (sender, content) pair before treating the new arrival as a duplicate.
const DedupWindow = 5 * time.Minute

// MessageService handles the ingestion path: timestamp normalization,
// duplicate suppression and persistence of inbound messages.
type MessageService struct {
	messages db.MessageRepository
	now      func() time.Time
}

// NewMessageService creates a new MessageService.
func NewMessageService(messages db.MessageRepository) *MessageService {
	return &MessageService{
		messages: messages,
		now:      time.Now,
	}
}

// Ingest normalizes and stores one inbound message. A repeat of the same
// (sender, content) pair within the dedup window is reported as stored
// without writing a second row. Returns whether the arrival was a duplicate.
func (s *MessageService) Ingest(ctx context.Context, sender, timestamp, content string, status models.MessageStatus) (bool, error) {
	if sender == "" {
		return false, fmt.Errorf("sender is required")
	}
	if !status.Valid() {
		status = models.StatusReceivedUnread
	}

	receivedAt := s.normalizeTimestamp(timestamp)
	cutoff := receivedAt.Add(-DedupWindow).Format(models.TimeLayout)

	dup, err := s.messages.ExistsSince(ctx, sender, content, cutoff)
	if err != nil {
		return false, fmt.Errorf("failed to check for duplicate: %w", err)
	}
	if dup {
		logger.Debug("duplicate message suppressed",
			zap.String("sender", sender),
		)
		metrics.MessagesDeduplicated.Inc()
		return true, nil
	}

	msg := &models.Message{
		Status:       status,
		Sender:       sender,
		ReceivedDate: receivedAt.Format(models.TimeLayout),
		Content:      content,
		CreatedAt:    s.now().Format(models.TimeLayout),
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		return false, err
	}

	logger.Info("message stored",
		zap.Int64("id", msg.ID),
		zap.String("sender", sender),
		zap.String("received_date", msg.ReceivedDate),
	)
	metrics.MessagesIngested.Inc()
	return false, nil
}

// Exists reports whether any stored row matches exactly on sender and
// content, with no time bound. Distinct from the bounded dedup probe used by
// Ingest.
func (s *MessageService) Exists(ctx context.Context, sender, content string) (bool, error) {
	return s.messages.Exists(ctx, sender, content)
}

// MarkDeleted records that the upstream device confirmed deleting the
// message from the SIM. The row is kept.
func (s *MessageService) MarkDeleted(ctx context.Context, id int64) error {
	return s.messages.MarkDeleted(ctx, id)
}

// MarkSent flags the given messages as forwarded to the notification
// transport.
func (s *MessageService) MarkSent(ctx context.Context, ids []int64) error {
	return s.messages.MarkSent(ctx, ids)
}

// ListUnverified returns the unverified backlog, oldest first.
func (s *MessageService) ListUnverified(ctx context.Context) ([]*models.Message, error) {
	return s.messages.ListUnverified(ctx)
}

// ListUnsent returns messages the transport has not forwarded yet.
func (s *MessageService) ListUnsent(ctx context.Context, limit int) ([]*models.Message, error) {
	return s.messages.ListUnsent(ctx, limit)
}

// normalizeTimestamp converts the modem-native timestamp into a local
// instant. Malformed or absent input falls back to the current time; the
// failure is logged, never propagated.
func (s *MessageService) normalizeTimestamp(raw string) time.Time {
	if raw == "" {
		return s.now()
	}
	parsed, err := parseModemDate(raw)
	if err != nil {
		logger.Warn("failed to parse modem timestamp, using current time",
			zap.String("timestamp", raw),
			zap.Error(err),
		)
		return s.now()
	}
	return parsed
}

// parseModemDate parses the modem's "YY/MM/DD,HH:MM:SS±TZ" format. The
// two-digit year is offset by 2000 and the quarter-hour timezone suffix is
// discarded; the modem reports local time.
func parseModemDate(raw string) (time.Time, error) {
	datePart, timePart, ok := strings.Cut(raw, ",")
	if !ok {
		return time.Time{}, fmt.Errorf("missing date/time separator in %q", raw)
	}

	if i := strings.IndexAny(timePart, "+-"); i >= 0 {
		timePart = timePart[:i]
	}

	dateFields := strings.Split(datePart, "/")
	timeFields := strings.Split(timePart, ":")
	if len(dateFields) != 3 || len(timeFields) != 3 {
		return time.Time{}, fmt.Errorf("malformed modem timestamp %q", raw)
	}

	nums := make([]int, 0, 6)
	for _, f := range append(dateFields, timeFields...) {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return time.Time{}, fmt.Errorf("malformed modem timestamp %q: %w", raw, err)
		}
		nums = append(nums, n)
	}

	year, month, day := 2000+nums[0], nums[1], nums[2]
	hour, minute, second := nums[3], nums[4], nums[5]
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("invalid date in modem timestamp %q", raw)
	}
	if hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("invalid time in modem timestamp %q", raw)
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.Local), nil
}
