// Package feed maintains one ordered, duplicate-free view of the
// shared message timeline, fed by two independent sources: a live
// top-K subscription and on-demand older-history pages.
package feed

import (
	"sort"

	"github.com/google/uuid"

	"pocket-chat/domain"
)

// insertSorted places msg at its sorted position. Equal timestamps
// keep arrival order: the new entry lands after existing equals.
func insertSorted(list []domain.Message, msg domain.Message) []domain.Message {
	i := sort.Search(len(list), func(i int) bool {
		return list[i].Timestamp.After(msg.Timestamp)
	})
	list = append(list, domain.Message{})
	copy(list[i+1:], list[i:])
	list[i] = msg
	return list
}

// upsert merges one committed message by ID. A known ID with an
// unchanged timestamp is replaced in place; a changed timestamp
// forces remove-and-reinsert so the order invariant holds.
func upsert(list []domain.Message, msg domain.Message) []domain.Message {
	for i := range list {
		if list[i].ID != msg.ID {
			continue
		}
		if list[i].Timestamp.Equal(msg.Timestamp) {
			list[i] = msg
			return list
		}
		list = append(list[:i], list[i+1:]...)
		return insertSorted(list, msg)
	}
	return insertSorted(list, msg)
}

// prependPage normalizes one older-history page (wire order is newest
// first) and attaches it in front of the loaded list. IDs already
// present are skipped, which defends against overlap between the page
// and the live window.
func prependPage(list []domain.Message, page []domain.Message) []domain.Message {
	known := make(map[uuid.UUID]struct{}, len(list))
	for _, m := range list {
		known[m.ID] = struct{}{}
	}
	var older []domain.Message
	for i := len(page) - 1; i >= 0; i-- {
		m := page[i]
		if _, ok := known[m.ID]; ok {
			continue
		}
		known[m.ID] = struct{}{}
		older = append(older, m)
	}
	return append(older, list...)
}
