package usecase

import (
	"context"
	"errors"
	"fmt"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
)

// ErrPersistence indicates an infrastructure/repository failure inside a use
// case. Callers may retry.
var ErrPersistence = errors.New("chat use case persistence error")

// persistErr passes domain errors through untouched and classifies anything
// else as a persistence failure.
func persistErr(err error) error {
	if err == nil {
		return nil
	}
	for _, class := range []error{
		chat.ErrUnauthorized, chat.ErrForbidden, chat.ErrNotFound,
		chat.ErrValidation, chat.ErrModeration, ErrPersistence,
		context.Canceled,
	} {
		if errors.Is(err, class) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}
