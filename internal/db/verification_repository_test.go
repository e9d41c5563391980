package db

import (
	"context"
	"testing"

	"sms-relay-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verificationFixture struct {
	database      *Database
	users         UserRepository
	messages      MessageRepository
	verifications VerificationRepository
}

func setupVerificationFixture(t *testing.T) *verificationFixture {
	database := SetupTestDB(t)
	return &verificationFixture{
		database:      database,
		users:         NewUserRepository(database),
		messages:      NewMessageRepository(database),
		verifications: NewVerificationRepository(database),
	}
}

func (f *verificationFixture) user(t *testing.T, externalID string) *models.User {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.users.Upsert(ctx, &models.User{
		ExternalID: externalID,
		CreatedAt:  "2024-06-15 08:00:00",
	}))
	user, err := f.users.GetByExternalID(ctx, externalID)
	require.NoError(t, err)
	return user
}

func TestVerificationRepository_Record_Success(t *testing.T) {
	f := setupVerificationFixture(t)
	ctx := context.Background()

	user := f.user(t, "abc123")
	msg := insertTestMessage(t, f.messages, "106", "2024-06-15 10:30:00", "1400.00 received")

	v := &models.Verification{
		UserID:     user.ID,
		MessageID:  &msg.ID,
		Outcome:    models.OutcomeSuccess,
		VerifiedAt: "2024-06-15 10:35:00",
	}
	require.NoError(t, f.verifications.Record(ctx, v))
	assert.NotZero(t, v.ID)

	// A success stamps the message's back-reference.
	stored, err := f.messages.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.VerifiedBy)
	assert.Equal(t, user.ID, *stored.VerifiedBy)
}

func TestVerificationRepository_Record_FailedHasNoMessage(t *testing.T) {
	f := setupVerificationFixture(t)
	ctx := context.Background()

	user := f.user(t, "abc123")

	v := &models.Verification{
		UserID:     user.ID,
		Outcome:    models.OutcomeFailed,
		VerifiedAt: "2024-06-15 10:35:00",
	}
	require.NoError(t, f.verifications.Record(ctx, v))

	history, err := f.verifications.HistoryFor(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].MessageID)
	assert.Nil(t, history[0].MessageContent)
}

func TestVerificationRepository_Record_Validation(t *testing.T) {
	f := setupVerificationFixture(t)
	ctx := context.Background()

	assert.Error(t, f.verifications.Record(ctx, nil))
	assert.Error(t, f.verifications.Record(ctx, &models.Verification{
		Outcome:    models.OutcomeFailed,
		VerifiedAt: "2024-06-15 10:35:00",
	}), "user id is required even on failure")
	assert.Error(t, f.verifications.Record(ctx, &models.Verification{
		UserID:     1,
		Outcome:    "pending",
		VerifiedAt: "2024-06-15 10:35:00",
	}), "outcome is a closed enumeration")
}

// The schema allows two different users to successfully verify the same
// message; the last success wins the back-reference. Documented permissive
// behavior, not a bug.
func TestVerificationRepository_Record_TwoUsersSameMessage(t *testing.T) {
	f := setupVerificationFixture(t)
	ctx := context.Background()

	first := f.user(t, "user-1")
	second := f.user(t, "user-2")
	msg := insertTestMessage(t, f.messages, "106", "2024-06-15 10:30:00", "1400.00 received")

	require.NoError(t, f.verifications.Record(ctx, &models.Verification{
		UserID: first.ID, MessageID: &msg.ID, Outcome: models.OutcomeSuccess, VerifiedAt: "2024-06-15 10:35:00",
	}))
	require.NoError(t, f.verifications.Record(ctx, &models.Verification{
		UserID: second.ID, MessageID: &msg.ID, Outcome: models.OutcomeSuccess, VerifiedAt: "2024-06-15 10:36:00",
	}))

	stored, err := f.messages.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.VerifiedBy)
	assert.Equal(t, second.ID, *stored.VerifiedBy)
}

func TestVerificationRepository_FailedCountOn(t *testing.T) {
	f := setupVerificationFixture(t)
	ctx := context.Background()

	user := f.user(t, "abc123")
	other := f.user(t, "other")

	for _, at := range []string{"2024-06-15 09:00:00", "2024-06-15 23:59:59"} {
		require.NoError(t, f.verifications.Record(ctx, &models.Verification{
			UserID: user.ID, Outcome: models.OutcomeFailed, VerifiedAt: at,
		}))
	}
	// Yesterday's failure does not count.
	require.NoError(t, f.verifications.Record(ctx, &models.Verification{
		UserID: user.ID, Outcome: models.OutcomeFailed, VerifiedAt: "2024-06-14 23:00:00",
	}))
	// Another user's failure does not count.
	require.NoError(t, f.verifications.Record(ctx, &models.Verification{
		UserID: other.ID, Outcome: models.OutcomeFailed, VerifiedAt: "2024-06-15 12:00:00",
	}))
	// A success today does not count.
	require.NoError(t, f.verifications.Record(ctx, &models.Verification{
		UserID: user.ID, Outcome: models.OutcomeSuccess, VerifiedAt: "2024-06-15 12:00:00",
	}))

	count, err := f.verifications.FailedCountOn(ctx, user.ID, "2024-06-15")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = f.verifications.FailedCountOn(ctx, user.ID, "2024-06-14")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestVerificationRepository_LastSuccessAndHistory(t *testing.T) {
	f := setupVerificationFixture(t)
	ctx := context.Background()

	user := f.user(t, "abc123")
	early := insertTestMessage(t, f.messages, "106", "2024-06-15 10:00:00", "first 500.00")
	late := insertTestMessage(t, f.messages, "106", "2024-06-15 11:00:00", "second 700.00")

	require.NoError(t, f.verifications.Record(ctx, &models.Verification{
		UserID: user.ID, MessageID: &early.ID, Outcome: models.OutcomeSuccess, VerifiedAt: "2024-06-15 10:05:00",
	}))
	require.NoError(t, f.verifications.Record(ctx, &models.Verification{
		UserID: user.ID, Outcome: models.OutcomeFailed, VerifiedAt: "2024-06-15 10:30:00",
	}))
	require.NoError(t, f.verifications.Record(ctx, &models.Verification{
		UserID: user.ID, MessageID: &late.ID, Outcome: models.OutcomeSuccess, VerifiedAt: "2024-06-15 11:05:00",
	}))

	last, err := f.verifications.LastSuccess(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	require.NotNil(t, last.MessageContent)
	assert.Equal(t, "second 700.00", *last.MessageContent)
	assert.Equal(t, "2024-06-15 11:05:00", last.VerifiedAt)

	history, err := f.verifications.HistoryFor(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "2024-06-15 11:05:00", history[0].VerifiedAt)
	assert.Equal(t, "2024-06-15 10:30:00", history[1].VerifiedAt)
	assert.Equal(t, "2024-06-15 10:05:00", history[2].VerifiedAt)
}

func TestVerificationRepository_LastSuccess_Absent(t *testing.T) {
	f := setupVerificationFixture(t)

	last, err := f.verifications.LastSuccess(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestVerificationRepository_StatsFor(t *testing.T) {
	f := setupVerificationFixture(t)
	ctx := context.Background()

	user := f.user(t, "abc123")

	// No activity yet.
	stats, err := f.verifications.StatsFor(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.SuccessfulVerifications)
	assert.Nil(t, stats.LastActivity)

	msg := insertTestMessage(t, f.messages, "106", "2024-06-15 10:00:00", "500.00")
	require.NoError(t, f.verifications.Record(ctx, &models.Verification{
		UserID: user.ID, MessageID: &msg.ID, Outcome: models.OutcomeSuccess, VerifiedAt: "2024-06-15 10:05:00",
	}))
	require.NoError(t, f.verifications.Record(ctx, &models.Verification{
		UserID: user.ID, Outcome: models.OutcomeFailed, VerifiedAt: "2024-06-15 10:30:00",
	}))

	stats, err = f.verifications.StatsFor(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SuccessfulVerifications)
	require.NotNil(t, stats.LastActivity)
	assert.Equal(t, "2024-06-15 10:05:00", *stats.LastActivity)
}
