// Package message defines the records exchanged with a TLQ server.
//
// Message is what the server hands back from /add and /get. The request types are the
// JSON bodies the client posts to each endpoint; they get serialized by the codec layer
// and framed by the protocol package.
package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MaxMessageSize is the largest body, in bytes, the server accepts.
const MaxMessageSize = 65536

// MessageState is the server-side lifecycle state of a message.
type MessageState string

const (
	StateReady      MessageState = "Ready"      // Waiting to be fetched
	StateProcessing MessageState = "Processing" // Handed to a consumer, locked until LockUntil
	StateFailed     MessageState = "Failed"     // Processing failed on the consumer side
)

func (s MessageState) String() string {
	return string(s)
}

// MarshalText rejects states the server does not know about.
func (s MessageState) MarshalText() ([]byte, error) {
	switch s {
	case StateReady, StateProcessing, StateFailed:
		return []byte(s), nil
	}
	return nil, fmt.Errorf("message: invalid state %q", string(s))
}

// UnmarshalText is case sensitive: "ready" and "READY" are errors.
func (s *MessageState) UnmarshalText(text []byte) error {
	switch st := MessageState(text); st {
	case StateReady, StateProcessing, StateFailed:
		*s = st
		return nil
	}
	return fmt.Errorf("message: invalid state %q", string(text))
}

// Message is a queued message as reported by the server.
// The ID is assigned by the server (UUID v7) and is opaque to the client.
type Message struct {
	ID         uuid.UUID    `json:"id"`
	Body       string       `json:"body"`
	State      MessageState `json:"state"`
	LockUntil  *string      `json:"lock_until,omitempty"` // ISO datetime, set while Processing
	RetryCount uint32       `json:"retry_count"`
}

// UnmarshalJSON requires every field except lock_until to be present.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         *uuid.UUID    `json:"id"`
		Body       *string       `json:"body"`
		State      *MessageState `json:"state"`
		LockUntil  *string       `json:"lock_until"`
		RetryCount *uint32       `json:"retry_count"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.ID == nil:
		return errors.New("message: missing field id")
	case raw.Body == nil:
		return errors.New("message: missing field body")
	case raw.State == nil:
		return errors.New("message: missing field state")
	case raw.RetryCount == nil:
		return errors.New("message: missing field retry_count")
	}
	*m = Message{
		ID:         *raw.ID,
		Body:       *raw.Body,
		State:      *raw.State,
		LockUntil:  raw.LockUntil,
		RetryCount: *raw.RetryCount,
	}
	return nil
}

// New builds a Ready message with a fresh time-ordered id.
func New(body string) Message {
	return Message{
		ID:    uuid.Must(uuid.NewV7()),
		Body:  body,
		State: StateReady,
	}
}

// AddMessageRequest is the body of POST /add.
type AddMessageRequest struct {
	Body string `json:"body"`
}

// GetMessagesRequest is the body of POST /get.
type GetMessagesRequest struct {
	Count uint32 `json:"count"`
}

// DeleteMessagesRequest is the body of POST /delete.
type DeleteMessagesRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

// RetryMessagesRequest is the body of POST /retry.
type RetryMessagesRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

// PurgeRequest is the (empty) body of POST /purge.
type PurgeRequest struct{}
