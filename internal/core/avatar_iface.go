package core

import (
	"context"

	"github.com/dkeye/Avatar/internal/domain"
)

// AvatarService is what the outer surfaces (HTTP, websocket) drive.
type AvatarService interface {
	Open(ctx context.Context) error
	Close()
	Speak(ctx context.Context, text string) (domain.SpeechResult, error)
	// NotifyUtterance queues text behind earlier utterances; done receives the outcome.
	NotifyUtterance(text string, done func(domain.SpeechResult, error))
	Status() domain.Status
	Subscribe() (<-chan domain.Status, func())
}
