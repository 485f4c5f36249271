//go:generate go run go.uber.org/mock/mockgen -source=ports.go -destination=mocks/mock_ports.go -package=mocks
package configuration

import "context"

// Store is the durable mapping from conversation id to its ConversationConfig.
//
// Implementations wrap infrastructure failures with ErrStoreUnavailable and
// always read and write the aggregate as a whole.
type Store interface {
	// Find returns the aggregate for id; ok is false when none exists.
	Find(ctx context.Context, id string) (cfg ConversationConfig, ok bool, err error)
	// Create stores a new aggregate with Version 1. ErrConversationExists if
	// id is taken.
	Create(ctx context.Context, cfg ConversationConfig) error
	// Delete removes the aggregate. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
	// Save upserts the aggregate if the stored version (0 when absent) equals
	// cfg.Version, storing cfg.Version+1. Otherwise ErrVersionConflict.
	Save(ctx context.Context, cfg ConversationConfig) error
	// ConversationIDs lists every stored conversation.
	ConversationIDs(ctx context.Context) ([]string, error)
	Close() error
}

// Scheduler keeps recurring reply jobs keyed by (conversationID, configName).
type Scheduler interface {
	// ScheduleMessage registers the entry's cron job, replacing any job
	// already registered under the same key.
	ScheduleMessage(ctx context.Context, conversationID string, entry ConfigEntry) error
	// UnscheduleMessage removes the job. Unknown keys are not an error.
	UnscheduleMessage(ctx context.Context, conversationID string, entry ConfigEntry) error
}
