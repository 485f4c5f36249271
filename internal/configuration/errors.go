package configuration

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("invalid configuration")

	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationExists   = errors.New("conversation already initialized")

	// ErrConfigurationNotFound is matched by every *ConfigurationNotFoundError.
	ErrConfigurationNotFound = errors.New("configuration not found")

	// ErrStoreUnavailable wraps infrastructure failures reported by a Store.
	ErrStoreUnavailable = errors.New("config store unavailable")

	// ErrVersionConflict means another writer saved the aggregate first.
	ErrVersionConflict = errors.New("conversation config modified concurrently")

	// ErrScheduler wraps failures reported by a Scheduler.
	ErrScheduler = errors.New("scheduler error")
)

// ValidationReason identifies which check rejected an entry.
type ValidationReason string

const (
	ReasonMissingConversationID ValidationReason = "missing_conversation_id"
	ReasonMissingName           ValidationReason = "missing_name"
	ReasonNameWhitespace        ValidationReason = "name_whitespace"
	ReasonMissingMatcher        ValidationReason = "missing_matcher"
	ReasonMissingReply          ValidationReason = "missing_reply"
	ReasonInvalidRegex          ValidationReason = "invalid_regex"
	ReasonInvalidCronExpression ValidationReason = "invalid_cron_expression"
)

var reasonText = map[ValidationReason]string{
	ReasonMissingConversationID: "conversation id can't be empty",
	ReasonMissingName:           "'configName' can't be empty",
	ReasonNameWhitespace:        "'configName' may not contain any whitespace characters",
	ReasonMissingMatcher:        "both 'regex' and 'cronExpression' are empty",
	ReasonMissingReply:          "'reply' can't be empty",
	ReasonInvalidRegex:          "invalid regex",
	ReasonInvalidCronExpression: "invalid cron expression",
}

type ValidationError struct {
	Reason ValidationReason
	// Cause is the parser error for regex/cron failures.
	Cause error
}

func (e *ValidationError) Error() string {
	msg := reasonText[e.Reason]
	if msg == "" {
		msg = string(e.Reason)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", ErrValidation, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, msg)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Cause }

type ConfigurationNotFoundError struct {
	Name string
}

func (e *ConfigurationNotFoundError) Error() string {
	return fmt.Sprintf("configuration '%s' not found", e.Name)
}

func (e *ConfigurationNotFoundError) Is(target error) bool {
	return target == ErrConfigurationNotFound
}

// PartialFailureError reports that the durable set and the live schedule may
// have diverged: the primary step failed and undoing the side effect failed too.
type PartialFailureError struct {
	Op             string
	ConversationID string
	ConfigName     string
	Cause          error
	Compensation   error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s %s/%s: partial failure: %v (compensation failed: %v)",
		e.Op, e.ConversationID, e.ConfigName, e.Cause, e.Compensation)
}

func (e *PartialFailureError) Unwrap() []error { return []error{e.Cause, e.Compensation} }

// IsInputError reports whether err is something the caller can fix by
// changing its request, as opposed to an infrastructure failure.
func IsInputError(err error) bool {
	var partial *PartialFailureError
	if errors.As(err, &partial) {
		return false
	}
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConversationNotFound) ||
		errors.Is(err, ErrConfigurationNotFound)
}
