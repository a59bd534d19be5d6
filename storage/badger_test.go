package storage

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"pocket-chat/domain"
)

func openTestStore(t *testing.T) *BadgerStore {
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBadgerStore(db, slog.Default())
}

// seed appends count messages with strictly increasing timestamps.
func seed(t *testing.T, store *BadgerStore, count int) {
	for i := 0; i < count; i++ {
		require.NoError(t, store.Append("alice", fmt.Sprintf("message %02d", i)))
		time.Sleep(2 * time.Millisecond)
	}
}

func Test_FetchPageBefore_Pages_Backward_Through_History(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	seed(t, store, 5)

	// Newest page first, in wire order (newest first).
	page, err := store.FetchPageBefore(nil, 2)
	req.NoError(err)
	req.Len(page.Messages, 2)
	req.Equal("message 04", page.Messages[0].Content)
	req.Equal("message 03", page.Messages[1].Content)
	req.NotNil(page.Cursor)

	page, err = store.FetchPageBefore(page.Cursor, 2)
	req.NoError(err)
	req.Len(page.Messages, 2)
	req.Equal("message 02", page.Messages[0].Content)
	req.Equal("message 01", page.Messages[1].Content)

	page, err = store.FetchPageBefore(page.Cursor, 2)
	req.NoError(err)
	req.Len(page.Messages, 1)
	req.Equal("message 00", page.Messages[0].Content)

	// History exhausted.
	page, err = store.FetchPageBefore(page.Cursor, 2)
	req.NoError(err)
	req.Empty(page.Messages)
	req.Nil(page.Cursor)
}

func Test_FetchPageBefore_On_Empty_Store(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)

	page, err := store.FetchPageBefore(nil, 10)
	req.NoError(err)
	req.Empty(page.Messages)
	req.Nil(page.Cursor)
}

func Test_Append_Assigns_ID_And_Timestamp(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)

	before := time.Now().UTC()
	req.NoError(store.Append("bob", "hello"))

	page, err := store.FetchPageBefore(nil, 1)
	req.NoError(err)
	req.Len(page.Messages, 1)
	message := page.Messages[0]
	req.NotEqual(uuid.Nil, message.ID)
	req.Equal("bob", message.Sender)
	req.Equal("hello", message.Content)
	req.False(message.Timestamp.Before(before))
}

func Test_SubscribeRecent_Delivers_Snapshot_Then_Echo(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	seed(t, store, 3)

	batches := make(chan []domain.ChangeRecord, 8)
	sub, err := store.SubscribeRecent(2, func(batch []domain.ChangeRecord) {
		batches <- batch
	})
	req.NoError(err)
	defer sub.Unsubscribe()

	// Initial snapshot: the newest two messages, committed and with
	// usable resume cursors.
	snapshot := waitBatch(req, batches)
	req.Len(snapshot, 2)
	contents := lo.Map(snapshot, func(rec domain.ChangeRecord, _ int) string {
		return rec.Content
	})
	req.ElementsMatch([]string{"message 02", "message 01"}, contents)
	for _, rec := range snapshot {
		req.Equal(domain.Added, rec.Kind)
		req.NotNil(rec.Timestamp)
		req.NotNil(rec.Cursor)
	}

	// A write after subscribing comes back as a live echo.
	req.NoError(store.Append("dana", "hello"))
	echo := waitBatch(req, batches)
	req.Len(echo, 1)
	req.Equal("dana", echo[0].Sender)
	req.Equal("hello", echo[0].Content)
	req.NotNil(echo[0].Timestamp)
}

func Test_Snapshot_Is_Delivered_Even_For_An_Empty_Room(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)

	batches := make(chan []domain.ChangeRecord, 1)
	sub, err := store.SubscribeRecent(10, func(batch []domain.ChangeRecord) {
		batches <- batch
	})
	req.NoError(err)
	defer sub.Unsubscribe()

	snapshot := waitBatch(req, batches)
	req.Empty(snapshot)
}

func Test_Unsubscribe_Stops_Delivery(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)

	batches := make(chan []domain.ChangeRecord, 8)
	sub, err := store.SubscribeRecent(10, func(batch []domain.ChangeRecord) {
		batches <- batch
	})
	req.NoError(err)
	waitBatch(req, batches) // drain the snapshot

	sub.Unsubscribe()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		req.Fail("subscription did not stop in time")
	}
	req.NoError(sub.Err())

	req.NoError(store.Append("dana", "after unsubscribe"))
	select {
	case batch := <-batches:
		req.Fail(fmt.Sprintf("unexpected delivery after unsubscribe: %v", batch))
	case <-time.After(100 * time.Millisecond):
	}
}

func waitBatch(req *require.Assertions, batches chan []domain.ChangeRecord) []domain.ChangeRecord {
	select {
	case batch := <-batches:
		return batch
	case <-time.After(2 * time.Second):
		req.Fail("no batch delivered in time")
		return nil
	}
}
