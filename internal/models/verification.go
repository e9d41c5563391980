package models

// VerificationOutcome is the terminal result of one match attempt.
type VerificationOutcome string

const (
	OutcomeSuccess VerificationOutcome = "success"
	OutcomeFailed  VerificationOutcome = "failed"
)

// Valid reports whether the outcome is one of the two terminal values.
func (o VerificationOutcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomeFailed
}

// Verification is one attempt to match a user's claim to a message. A failed
// search carries no message id. Rows are never mutated or deleted.
type Verification struct {
	ID         int64               `json:"id"`
	UserID     int64               `json:"user_id"`
	MessageID  *int64              `json:"sms_id,omitempty"`
	Outcome    VerificationOutcome `json:"status"`
	VerifiedAt string              `json:"verified_at"` // TimeLayout
}

// VerificationDetail is a verification joined with its linked message, for
// history and last-success views. The message fields are nil when the
// attempt had no match.
type VerificationDetail struct {
	Verification
	MessageSender       *string `json:"sender,omitempty"`
	MessageContent      *string `json:"content,omitempty"`
	MessageReceivedDate *string `json:"received_date,omitempty"`
}
