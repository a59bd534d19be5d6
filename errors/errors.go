package errors

import "fmt"

var (
	ErrEmptyMessage       = fmt.Errorf("message content is empty")
	ErrStoreUnavailable   = fmt.Errorf("message store unavailable")
	ErrSubscriptionClosed = fmt.Errorf("live subscription closed")
	ErrFeedClosed         = fmt.Errorf("feed session closed")
)
