package ai

import "errors"

var (
	ErrAssistantUnavailable = errors.New("ai assistant unreachable")
	ErrAssistantTimeout     = errors.New("ai assistant timeout")
	ErrInvalidResponse      = errors.New("ai assistant returned invalid response")
)
