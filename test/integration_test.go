package test

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"pocket-chat/feed"
	"pocket-chat/storage"
)

// Test_Feed_Scenario runs the whole stack for real: seeded history in
// BadgerDB, a live session that receives its own echo, then backward
// paging until the history is exhausted.
func Test_Feed_Scenario(t *testing.T) {
	req := require.New(t)
	cfg, err := LoadConfig()
	req.NoError(err)

	header := "  ====== feed end-to-end ======"
	if cfg.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	// Reduced to 16 Mo for testing (avoid gigabytes of preallocation)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := storage.NewBadgerStore(db, log)

	// Given a room that already holds 25 messages
	for i := 0; i < 25; i++ {
		req.NoError(store.Append("alice", fmt.Sprintf("message %02d", i)))
		time.Sleep(2 * time.Millisecond)
	}

	// When a session opens with a live window of 10
	session, err := feed.NewSynchronizer(store, "bob",
		feed.Options{WindowSize: 10, PageSize: 10}, log)
	req.NoError(err)
	t.Cleanup(session.Close)

	// Then the initial snapshot fills the feed with the newest 10
	req.Eventually(func() bool { return len(session.Messages()) == 10 },
		cfg.Timeout, 10*time.Millisecond)
	req.False(session.Loading())

	// And a sent message becomes visible through its live echo only
	req.NoError(session.Send("hello from bob"))
	req.Eventually(func() bool {
		messages := session.Messages()
		return len(messages) == 11 &&
			messages[len(messages)-1].Content == "hello from bob"
	}, cfg.Timeout, 10*time.Millisecond)

	// And paging backward twice recovers the whole seeded history
	req.NoError(session.LoadOlder())
	req.Len(session.Messages(), 21)
	req.NoError(session.LoadOlder())
	req.Len(session.Messages(), 26)

	// And once exhausted, further paging is a no-op
	req.NoError(session.LoadOlder())
	req.Len(session.Messages(), 26)

	// And the order/uniqueness invariants hold across the session
	messages := session.Messages()
	seen := make(map[uuid.UUID]struct{}, len(messages))
	for i, m := range messages {
		if i > 0 {
			req.False(messages[i-1].Timestamp.After(m.Timestamp))
		}
		_, duplicate := seen[m.ID]
		req.False(duplicate)
		seen[m.ID] = struct{}{}
	}
}
