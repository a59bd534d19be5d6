//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"pocket-chat/domain"
)

// IMessageStore is the abstract ordered document store backing the
// feed. Implementations assign IDs and timestamps server-side; the
// client never generates an ordering value itself.
type IMessageStore interface {
	// SubscribeRecent opens a standing query on the newest limit
	// messages. The initial snapshot arrives as Added records, then
	// incremental Added/Modified records follow as the window changes.
	// Callbacks are serialized, never concurrent with each other.
	SubscribeRecent(limit int, onChange func(batch []domain.ChangeRecord)) (ISubscription, error)

	// FetchPageBefore returns up to pageSize messages strictly older
	// than cursor, newest first, or the newest page when cursor is nil.
	FetchPageBefore(cursor *string, pageSize int) (domain.Page, error)

	// Append writes one message; the store assigns ID and timestamp.
	// There are no partial writes.
	Append(sender, content string) error
}

// ISubscription is a live-subscription handle.
type ISubscription interface {
	// Unsubscribe stops delivery. Idempotent.
	Unsubscribe()
	// Done is closed once delivery has stopped, whether through
	// Unsubscribe or a store-side failure.
	Done() <-chan struct{}
	// Err reports why delivery stopped, nil after a plain Unsubscribe.
	Err() error
}

// IFeed is the presentation-facing surface of the synchronizer.
type IFeed interface {
	Messages() []domain.Message
	Loading() bool
	LoadOlder() error
	Send(text string) error
	OnChange(listener func())
	Err() error
	Close()
}
