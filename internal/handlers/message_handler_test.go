package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageHandler_Ingest(t *testing.T) {
	f := setupHandlerFixture(t)

	payload := IngestRequest{
		Sender:    "106",
		Timestamp: "24/06/15,10:30:00+02",
		Content:   "You received 1400.00 credits",
	}

	w := f.request(t, http.MethodPost, "/api/sms", payload)
	requireStatus(t, w, http.StatusOK)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["saved"])
	assert.Equal(t, false, body["duplicate"])

	// Resubmitting inside the dedup window still reports saved.
	w = f.request(t, http.MethodPost, "/api/sms", payload)
	requireStatus(t, w, http.StatusOK)
	body = decodeBody(t, w)
	assert.Equal(t, true, body["saved"])
	assert.Equal(t, true, body["duplicate"])

	messages, err := f.messages.ListUnverified(context.Background())
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestMessageHandler_Ingest_MissingSender(t *testing.T) {
	f := setupHandlerFixture(t)

	w := f.request(t, http.MethodPost, "/api/sms", map[string]string{
		"content": "no sender",
	})
	requireStatus(t, w, http.StatusBadRequest)
}

func TestMessageHandler_ListUnverified(t *testing.T) {
	f := setupHandlerFixture(t)

	f.seedMessage(t, "106", "2024-06-15 10:30:00", "first")
	f.seedMessage(t, "106", "2024-06-15 11:30:00", "second")

	w := f.request(t, http.MethodGet, "/api/sms/unverified", nil)
	requireStatus(t, w, http.StatusOK)
	body := decodeBody(t, w)
	assert.Len(t, body["messages"], 2)
}

func TestMessageHandler_ListUnsent(t *testing.T) {
	f := setupHandlerFixture(t)

	f.seedMessage(t, "106", "2024-06-15 10:30:00", "pending")

	w := f.request(t, http.MethodGet, "/api/sms/unsent?limit=1", nil)
	requireStatus(t, w, http.StatusOK)
	body := decodeBody(t, w)
	assert.Len(t, body["messages"], 1)

	w = f.request(t, http.MethodGet, "/api/sms/unsent?limit=abc", nil)
	requireStatus(t, w, http.StatusBadRequest)

	w = f.request(t, http.MethodGet, "/api/sms/unsent?limit=-1", nil)
	requireStatus(t, w, http.StatusBadRequest)
}

func TestMessageHandler_MarkSent(t *testing.T) {
	f := setupHandlerFixture(t)

	msg := f.seedMessage(t, "106", "2024-06-15 10:30:00", "to forward")

	w := f.request(t, http.MethodPost, "/api/sms/sent", MarkSentRequest{IDs: []int64{msg.ID}})
	requireStatus(t, w, http.StatusNoContent)

	unsent, err := f.messages.ListUnsent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, unsent)

	w = f.request(t, http.MethodPost, "/api/sms/sent", map[string]string{})
	requireStatus(t, w, http.StatusBadRequest)
}

func TestMessageHandler_MarkDeleted(t *testing.T) {
	f := setupHandlerFixture(t)

	msg := f.seedMessage(t, "106", "2024-06-15 10:30:00", "on sim")

	w := f.request(t, http.MethodPost, fmt.Sprintf("/api/sms/%d/deleted", msg.ID), nil)
	requireStatus(t, w, http.StatusNoContent)

	stored, err := f.messages.GetByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.DeletedFromSIM)

	w = f.request(t, http.MethodPost, "/api/sms/abc/deleted", nil)
	requireStatus(t, w, http.StatusBadRequest)
}
