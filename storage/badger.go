// Package storage provides the BadgerDB-backed message store, the
// local stand-in for the managed document database the mobile client
// talks to in production.
package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"pocket-chat/contract"
	"pocket-chat/domain"
	"pocket-chat/errors"
)

const msgPrefix = "msg:"

// maxKeySuffix sorts after any real 19-digit timestamp segment, so a
// reverse seek from it lands on the newest message.
const maxKeySuffix = "9999999999999999999"

// subscriptionBuffer bounds the per-subscriber batch queue.
const subscriptionBuffer = 64

type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger

	mu   sync.RWMutex
	subs map[uuid.UUID]*subscription
}

func NewBadgerStore(db *badger.DB, log *slog.Logger) *BadgerStore {
	return &BadgerStore{db: db, log: log, subs: make(map[uuid.UUID]*subscription)}
}

// storedMessage is the on-disk value format.
type storedMessage struct {
	ID      string `json:"id"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
	At      int64  `json:"at"` // unix nanoseconds, UTC
}

// messageKey keeps messages chronologically sorted on disk:
// 19-digit zero padding makes lexicographic order match time order,
// and the UUID disambiguates two writes in the same nanosecond.
func messageKey(at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", msgPrefix, at.UnixNano(), id))
}

// cursorFor derives the opaque resume marker of a message, the part
// of its key after the prefix.
func cursorFor(m domain.Message) string {
	return fmt.Sprintf("%019d:%s", m.Timestamp.UnixNano(), m.ID)
}

// Append writes one message with a store-assigned ID and timestamp,
// then fans the committed record out to live subscribers. The sender
// sees its own message only through that echo.
func (s *BadgerStore) Append(sender, content string) error {
	message := domain.Message{
		ID:        uuid.New(),
		Sender:    sender,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	value, err := json.Marshal(storedMessage{
		ID:      message.ID.String(),
		Sender:  message.Sender,
		Content: message.Content,
		At:      message.Timestamp.UnixNano(),
	})
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message.Timestamp, message.ID), value)
	})
	if err != nil {
		return fmt.Errorf("%w: %s", errors.ErrStoreUnavailable, err)
	}

	record := toRecord(message)
	s.mu.RLock()
	for _, sub := range s.subs {
		sub.enqueue([]domain.ChangeRecord{record}, s.log)
	}
	s.mu.RUnlock()
	return nil
}

// FetchPageBefore reads one backward page using a reverse prefix scan.
// Thanks to the padded timestamp in the key, iteration order is
// already newest-first; the oldest visited key becomes the new cursor.
func (s *BadgerStore) FetchPageBefore(cursor *string, pageSize int) (domain.Page, error) {
	var values [][]byte
	var lastKey string
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(msgPrefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			seekKey = append(prefix, []byte(maxKeySuffix)...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}
		it.Seek(seekKey)

		// The cursor entry itself belongs to the previous page.
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(values) == pageSize {
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(msgPrefix):])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			values = append(values, value)
		}
		return nil
	})
	if err != nil {
		return domain.Page{}, fmt.Errorf("%w: %s", errors.ErrStoreUnavailable, err)
	}
	if len(values) == 0 {
		return domain.Page{}, nil
	}

	messages := make([]domain.Message, 0, len(values))
	for _, value := range values {
		message, err := Decode(value)
		if err != nil {
			return domain.Page{}, err
		}
		messages = append(messages, message)
	}
	return domain.Page{Messages: messages, Cursor: &lastKey}, nil
}

// SubscribeRecent registers a live subscriber and delivers the newest
// limit messages as its initial snapshot. Registration happens before
// the snapshot read so a write racing the read lands in the live
// queue instead of being lost; the feed de-duplicates by ID when it
// lands in both.
func (s *BadgerStore) SubscribeRecent(limit int, onChange func(batch []domain.ChangeRecord)) (contract.ISubscription, error) {
	sub := &subscription{
		id:      uuid.New(),
		store:   s,
		batches: make(chan []domain.ChangeRecord, subscriptionBuffer),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}

	s.mu.Lock()
	s.subs[sub.id] = sub
	s.mu.Unlock()

	page, err := s.FetchPageBefore(nil, limit)
	if err != nil {
		sub.Unsubscribe()
		return nil, err
	}
	// The snapshot is delivered even when the room is empty, so the
	// feed can leave its loading state.
	sub.enqueue(snapshotBatch(page), s.log)

	go sub.deliver(onChange)
	return sub, nil
}

func (s *BadgerStore) remove(id uuid.UUID) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

// Decode converts an on-disk value into a domain message.
func Decode(value []byte) (domain.Message, error) {
	var stored storedMessage
	if err := json.Unmarshal(value, &stored); err != nil {
		return domain.Message{}, err
	}
	id, err := uuid.Parse(stored.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:        id,
		Sender:    stored.Sender,
		Content:   stored.Content,
		Timestamp: time.Unix(0, stored.At).UTC(),
	}, nil
}

func snapshotBatch(page domain.Page) []domain.ChangeRecord {
	return lo.Map(page.Messages, func(m domain.Message, _ int) domain.ChangeRecord {
		return toRecord(m)
	})
}

func toRecord(m domain.Message) domain.ChangeRecord {
	at := m.Timestamp
	return domain.ChangeRecord{
		Kind:      domain.Added,
		ID:        m.ID,
		Sender:    m.Sender,
		Content:   m.Content,
		Timestamp: &at,
		Cursor:    lo.ToPtr(cursorFor(m)),
	}
}

// subscription is a registered live subscriber. One goroutine drains
// the batch queue, so onChange callbacks are serialized and never
// concurrent with each other.
type subscription struct {
	id      uuid.UUID
	store   *BadgerStore
	batches chan []domain.ChangeRecord
	done    chan struct{}
	stop    chan struct{}
	once    sync.Once
	err     error
}

func (sub *subscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.store.remove(sub.id)
		close(sub.stop)
	})
}

func (sub *subscription) Done() <-chan struct{} {
	return sub.done
}

func (sub *subscription) Err() error {
	select {
	case <-sub.done:
		return sub.err
	default:
		return nil
	}
}

func (sub *subscription) enqueue(batch []domain.ChangeRecord, log *slog.Logger) {
	select {
	case sub.batches <- batch:
	default:
		log.Warn("subscription buffer full, dropping batch", "subscriber", sub.id)
	}
}

func (sub *subscription) deliver(onChange func(batch []domain.ChangeRecord)) {
	defer close(sub.done)
	for {
		select {
		case <-sub.stop:
			return
		case batch := <-sub.batches:
			onChange(batch)
		}
	}
}
