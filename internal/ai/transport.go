package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrAssistantTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrAssistantTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrAssistantUnavailable, err)
	}

	return fmt.Errorf("%w: %v", ErrAssistantUnavailable, err)
}
