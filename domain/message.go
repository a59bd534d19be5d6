// Package domain contains core concepts of the chat client.
// This file defines Message records and live-subscription deltas.
// Messages are immutable once committed by the store.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a committed chat message.
// ID and Timestamp are assigned by the store at commit time.
type Message struct {
	ID        uuid.UUID
	Sender    string
	Content   string
	Timestamp time.Time
}

// ChangeKind tags a live-subscription delta.
type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
)

// ChangeRecord is one entry of a live-subscription batch.
//
// Timestamp is nil while the store has not committed the write yet
// (the pending-write echo of the sender's own message); such records
// carry no usable sort key. Cursor is an opaque resume marker for this
// document, usable as a FetchPageBefore starting point.
type ChangeRecord struct {
	Kind      ChangeKind
	ID        uuid.UUID
	Sender    string
	Content   string
	Timestamp *time.Time
	Cursor    *string
}

// Page is one backward read of history.
// Messages are in wire order (newest first); Cursor points to the
// oldest returned message, nil when the page is empty.
type Page struct {
	Messages []Message
	Cursor   *string
}
