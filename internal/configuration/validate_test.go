package configuration_test

import (
	"errors"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"replybot/internal/configuration"
)

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		entry  configuration.ConfigEntry
		reason configuration.ValidationReason
	}{
		{
			name:   "missing name",
			entry:  configuration.ConfigEntry{Regex: lo.ToPtr("hello"), Reply: "hi"},
			reason: configuration.ReasonMissingName,
		},
		{
			name:   "space in name",
			entry:  configuration.ConfigEntry{ConfigName: "good morning", Regex: lo.ToPtr("hello"), Reply: "hi"},
			reason: configuration.ReasonNameWhitespace,
		},
		{
			name:   "tab in name",
			entry:  configuration.ConfigEntry{ConfigName: "a\tb", Regex: lo.ToPtr("hello"), Reply: "hi"},
			reason: configuration.ReasonNameWhitespace,
		},
		{
			name:   "trailing newline in name",
			entry:  configuration.ConfigEntry{ConfigName: "daily\n", CronExpression: lo.ToPtr("0 9 * * *"), Reply: "hi"},
			reason: configuration.ReasonNameWhitespace,
		},
		{
			name:   "no-break space in name",
			entry:  configuration.ConfigEntry{ConfigName: "a\u00a0b", Regex: lo.ToPtr("x"), Reply: "hi"},
			reason: configuration.ReasonNameWhitespace,
		},
		{
			name:   "whitespace checked before matcher",
			entry:  configuration.ConfigEntry{ConfigName: "a b"},
			reason: configuration.ReasonNameWhitespace,
		},
		{
			name:   "no matcher",
			entry:  configuration.ConfigEntry{ConfigName: "greet", Reply: "hi"},
			reason: configuration.ReasonMissingMatcher,
		},
		{
			name:   "no reply",
			entry:  configuration.ConfigEntry{ConfigName: "greet", Regex: lo.ToPtr("hello")},
			reason: configuration.ReasonMissingReply,
		},
		{
			name:   "reply checked before regex compile",
			entry:  configuration.ConfigEntry{ConfigName: "greet", Regex: lo.ToPtr("(")},
			reason: configuration.ReasonMissingReply,
		},
		{
			name:   "unbalanced regex",
			entry:  configuration.ConfigEntry{ConfigName: "greet", Regex: lo.ToPtr("(hello"), Reply: "hi"},
			reason: configuration.ReasonInvalidRegex,
		},
		{
			name:   "lookahead is not RE2",
			entry:  configuration.ConfigEntry{ConfigName: "greet", Regex: lo.ToPtr("foo(?=bar)"), Reply: "hi"},
			reason: configuration.ReasonInvalidRegex,
		},
		{
			name:   "regex checked before cron",
			entry:  configuration.ConfigEntry{ConfigName: "greet", Regex: lo.ToPtr("["), CronExpression: lo.ToPtr("* * *"), Reply: "hi"},
			reason: configuration.ReasonInvalidRegex,
		},
		{
			name:   "three cron fields",
			entry:  configuration.ConfigEntry{ConfigName: "daily", CronExpression: lo.ToPtr("* * *"), Reply: "hi"},
			reason: configuration.ReasonInvalidCronExpression,
		},
		{
			name:   "cron minute out of range",
			entry:  configuration.ConfigEntry{ConfigName: "daily", CronExpression: lo.ToPtr("61 * * * *"), Reply: "hi"},
			reason: configuration.ReasonInvalidCronExpression,
		},
		{
			name:   "empty cron",
			entry:  configuration.ConfigEntry{ConfigName: "daily", CronExpression: lo.ToPtr(""), Reply: "hi"},
			reason: configuration.ReasonInvalidCronExpression,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := configuration.Validate(tt.entry)
			require.ErrorIs(t, err, configuration.ErrValidation)
			var verr *configuration.ValidationError
			require.True(t, errors.As(err, &verr))
			require.Equal(t, tt.reason, verr.Reason)
		})
	}
}

func TestValidateAccepts(t *testing.T) {
	t.Parallel()
	valid := []configuration.ConfigEntry{
		{ConfigName: "greet", Regex: lo.ToPtr("hello"), Reply: "hi!"},
		{ConfigName: "anything", Regex: lo.ToPtr(""), Reply: "matches all"},
		{ConfigName: "daily", CronExpression: lo.ToPtr("0 9 * * *"), Reply: "good morning"},
		{ConfigName: "seconds", CronExpression: lo.ToPtr("*/30 * * * * *"), Reply: "tick"},
		{ConfigName: "hourly", CronExpression: lo.ToPtr("@hourly"), Reply: "tock"},
		{ConfigName: "every", CronExpression: lo.ToPtr("@every 90m"), Reply: "again"},
		{ConfigName: "both", Regex: lo.ToPtr("^ping$"), CronExpression: lo.ToPtr("0 0 * * 1"), Reply: "pong"},
	}
	for _, e := range valid {
		require.NoError(t, configuration.Validate(e), e.ConfigName)
	}
}

func TestScheduledPrecedence(t *testing.T) {
	t.Parallel()
	require.False(t, configuration.ConfigEntry{Regex: lo.ToPtr("x")}.Scheduled())
	require.True(t, configuration.ConfigEntry{CronExpression: lo.ToPtr("@daily")}.Scheduled())
	require.True(t, configuration.ConfigEntry{Regex: lo.ToPtr("x"), CronExpression: lo.ToPtr("@daily")}.Scheduled())
}

func TestValidationErrorMessage(t *testing.T) {
	t.Parallel()
	err := configuration.Validate(configuration.ConfigEntry{ConfigName: "a b"})
	require.EqualError(t, err, "invalid configuration: 'configName' may not contain any whitespace characters")
	require.True(t, configuration.IsInputError(err))
}
