package domain

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"pocket-chat/errors"
)

var validate = validator.New()

type PostRequest struct {
	Sender  string `validate:"required"`
	Content string `validate:"required"`
}

// ValidatePost rejects empty or whitespace-only content before any
// store interaction happens.
func ValidatePost(req PostRequest) error {
	req.Content = strings.TrimSpace(req.Content)
	if err := validate.Struct(req); err != nil {
		return errors.ErrEmptyMessage
	}
	return nil
}
