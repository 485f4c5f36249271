package configuration

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/robfig/cron/v3"
)

// CronParser accepts 5-field and 6-field (leading seconds) specs plus
// descriptors such as "@hourly" and "@every 1h". The scheduler registers jobs
// with the same parser so anything that validates here also schedules.
var CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks an entry without touching any collaborator.
// Checks run cheapest first and the first failure is returned.
func Validate(e ConfigEntry) error {
	if e.ConfigName == "" {
		return &ValidationError{Reason: ReasonMissingName}
	}
	if strings.IndexFunc(e.ConfigName, unicode.IsSpace) >= 0 {
		return &ValidationError{Reason: ReasonNameWhitespace}
	}
	if e.Regex == nil && e.CronExpression == nil {
		return &ValidationError{Reason: ReasonMissingMatcher}
	}
	if e.Reply == "" {
		return &ValidationError{Reason: ReasonMissingReply}
	}
	if e.Regex != nil {
		if _, err := regexp.Compile(*e.Regex); err != nil {
			return &ValidationError{Reason: ReasonInvalidRegex, Cause: err}
		}
	}
	if e.CronExpression != nil {
		if _, err := CronParser.Parse(*e.CronExpression); err != nil {
			return &ValidationError{Reason: ReasonInvalidCronExpression, Cause: err}
		}
	}
	return nil
}
