package models

// TimeLayout is the canonical timestamp format used everywhere in the
// database (received_date, created_at, verified_at).
const TimeLayout = "2006-01-02 15:04:05"

// MinuteLayout is TimeLayout truncated to minute precision, used by the
// matching engine's window comparisons.
const MinuteLayout = "2006-01-02 15:04"

// MessageStatus is the lifecycle tag of an inbound message.
type MessageStatus string

const (
	StatusReceivedUnread MessageStatus = "received-unread"
	StatusReceivedRead   MessageStatus = "received-read"
)

// Valid reports whether the status is one of the known lifecycle tags.
func (s MessageStatus) Valid() bool {
	switch s {
	case StatusReceivedUnread, StatusReceivedRead:
		return true
	}
	return false
}

// Message is one inbound SMS. Rows are append-only: verified_by and the two
// flags are the only mutable columns, and rows are never purged.
type Message struct {
	ID             int64         `json:"id"`
	Status         MessageStatus `json:"status"`
	Sender         string        `json:"sender"`
	ReceivedDate   string        `json:"received_date"` // TimeLayout
	Content        string        `json:"content"`
	SentToTelegram bool          `json:"is_sent_to_telegram"`
	VerifiedBy     *int64        `json:"verified_by,omitempty"`
	DeletedFromSIM bool          `json:"deleted_from_sim"`
	CreatedAt      string        `json:"created_at"`
}
