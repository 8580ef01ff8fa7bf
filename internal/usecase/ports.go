//go:generate go run go.uber.org/mock/mockgen -source=ports.go -destination=../mocks/mock_ports.go -package=mocks
package usecase

import (
	"context"
	"time"

	"github.com/mmuslimabdulj/goat-whisper/internal/domain"
)

// MessageStore persists messages. Implementations must be safe for concurrent use.
type MessageStore interface {
	Create(ctx context.Context, in domain.NewMessage) (domain.Message, error)
	// BulkMarkRead returns the ids whose read flag actually changed
	BulkMarkRead(ctx context.Context, ids []string, owner string) ([]string, error)
}

// AccountDirectory is the user directory collaborator
type AccountDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
	SetPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error
}

// Cipher protects message content at rest
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
