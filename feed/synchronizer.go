package feed

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"pocket-chat/contract"
	"pocket-chat/domain"
	"pocket-chat/errors"
)

const (
	// DefaultWindowSize is K, the size of the live subscription window.
	DefaultWindowSize = 10
	// DefaultPageSize is P, the size of one backward history page.
	DefaultPageSize = 10
)

// Options sizes the live window (K) and the history page (P).
// The two are independent knobs even though they share a default.
type Options struct {
	WindowSize int
	PageSize   int
}

// Synchronizer owns the in-memory ordered list of messages for one
// chat session. It reconciles the live subscription and backward
// paging into a single list kept in non-decreasing timestamp order
// with unique IDs, and exposes the commands the presentation surface
// forwards: LoadOlder and Send.
//
// A message typed locally stays invisible until its committed echo
// arrives through the live subscription. The store is the single
// source of truth for ordering, which removes the whole class of
// duplicate-entry bugs an optimistic local insert would reintroduce.
type Synchronizer struct {
	mu       sync.Mutex
	log      *slog.Logger
	store    contract.IMessageStore
	sub      contract.ISubscription
	userName string
	opts     Options

	messages     []domain.Message
	oldestCursor *string
	// cursorFromPage records that a history page has extended further
	// back than the live window; from then on pages own the cursor.
	cursorFromPage bool
	liveOldestAt   *time.Time
	loadingOlder   bool
	noMoreHistory  bool
	loading        bool
	closed         bool
	subErr         error
	listeners      []func()
}

// NewSynchronizer opens the single live subscription for the session
// and returns the feed. The caller must Close it when the session ends.
func NewSynchronizer(store contract.IMessageStore, userName string, opts Options, log *slog.Logger) (*Synchronizer, error) {
	if opts.WindowSize <= 0 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	s := &Synchronizer{
		log:      log,
		store:    store,
		userName: userName,
		opts:     opts,
		loading:  true,
	}
	sub, err := store.SubscribeRecent(opts.WindowSize, s.applyLiveBatch)
	if err != nil {
		return nil, fmt.Errorf("opening live subscription: %w", err)
	}
	s.sub = sub
	go s.watchSubscription(sub)
	return s, nil
}

// Messages returns a snapshot copy of the current timeline, oldest
// first. The copy protects renderers from torn reads mid-merge.
func (s *Synchronizer) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]domain.Message, len(s.messages))
	copy(snapshot, s.messages)
	return snapshot
}

// Loading reports whether the initial live snapshot has arrived yet.
func (s *Synchronizer) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// OnChange registers a listener invoked after any mutation of the
// timeline and on degraded-state transitions.
func (s *Synchronizer) OnChange(listener func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Err reports the degraded state: non-nil once the live subscription
// has failed. LoadOlder and Send remain usable in that state.
func (s *Synchronizer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subErr
}

// applyLiveBatch merges one live-subscription batch into the timeline.
// Records without a committed timestamp have no sort key yet and are
// held back; the store delivers a Modified record for them once the
// server stamps the write.
func (s *Synchronizer) applyLiveBatch(batch []domain.ChangeRecord) {
	s.mu.Lock()
	if s.closed {
		// Stale callback after session teardown. Never applied.
		s.mu.Unlock()
		return
	}
	first := s.loading
	s.loading = false
	changed := false
	for _, rec := range batch {
		if rec.Timestamp == nil {
			s.log.Debug("holding back pending write", "id", rec.ID)
			continue
		}
		s.messages = upsert(s.messages, domain.Message{
			ID:        rec.ID,
			Sender:    rec.Sender,
			Content:   rec.Content,
			Timestamp: *rec.Timestamp,
		})
		changed = true
		if s.liveOldestAt == nil || rec.Timestamp.Before(*s.liveOldestAt) {
			s.liveOldestAt = rec.Timestamp
			// The live window only ever tracks the newest K, so a
			// page fetch that went further back keeps the cursor.
			if !s.cursorFromPage {
				s.oldestCursor = rec.Cursor
			}
		}
	}
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()

	if changed || first {
		for _, listener := range listeners {
			listener()
		}
	}
}

// LoadOlder fetches one page of history strictly older than the
// oldest loaded message and prepends it. Overlapping calls collapse
// to the single in-flight fetch; once the store reports no more
// history, further calls are no-ops.
func (s *Synchronizer) LoadOlder() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.ErrFeedClosed
	}
	if s.loadingOlder || s.noMoreHistory {
		s.mu.Unlock()
		return nil
	}
	s.loadingOlder = true
	cursor := s.oldestCursor
	s.mu.Unlock()

	page, err := s.store.FetchPageBefore(cursor, s.opts.PageSize)

	s.mu.Lock()
	if s.closed {
		// The session ended while the fetch was in flight. Discard.
		s.mu.Unlock()
		return nil
	}
	s.loadingOlder = false
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("fetching older history: %w", err)
	}
	if len(page.Messages) == 0 {
		s.noMoreHistory = true
		s.mu.Unlock()
		return nil
	}
	s.messages = prependPage(s.messages, page.Messages)
	s.oldestCursor = page.Cursor
	s.cursorFromPage = true
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()

	for _, listener := range listeners {
		listener()
	}
	return nil
}

// Send appends one message to the store. The entry becomes visible
// only when its committed echo comes back through the subscription.
// On failure the caller keeps the text and decides whether to retry.
func (s *Synchronizer) Send(text string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return errors.ErrFeedClosed
	}

	content := strings.TrimSpace(text)
	if err := domain.ValidatePost(domain.PostRequest{Sender: s.userName, Content: content}); err != nil {
		return err
	}
	if err := s.store.Append(s.userName, content); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// Close releases the live subscription. No mutation of the timeline
// happens afterwards; late page or snapshot callbacks are discarded.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub := s.sub
	s.mu.Unlock()
	sub.Unsubscribe()
}

// watchSubscription flags the degraded state if the subscription is
// closed by the store rather than by Close.
func (s *Synchronizer) watchSubscription(sub contract.ISubscription) {
	<-sub.Done()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	err := sub.Err()
	if err == nil {
		err = errors.ErrSubscriptionClosed
	}
	s.subErr = err
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()

	s.log.Warn("live subscription lost, feed degraded", "error", err)
	for _, listener := range listeners {
		listener()
	}
}
