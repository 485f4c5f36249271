package configuration

import (
	"time"

	"github.com/samber/lo"
)

// ConfigEntry is one named rule: a trigger (regex and/or cron) bound to a reply.
//
// Regex and CronExpression are pointers so "absent" and "present but empty"
// stay distinguishable after decoding a payload.
type ConfigEntry struct {
	ConfigName     string  `json:"configName"`
	Regex          *string `json:"regex,omitempty"`
	CronExpression *string `json:"cronExpression,omitempty"`
	Reply          string  `json:"reply"`
}

// Scheduled reports whether the entry needs a live scheduler registration.
// A cron expression wins over a regex when both are set.
func (e ConfigEntry) Scheduled() bool { return e.CronExpression != nil }

// ConversationConfig is the aggregate stored per conversation.
//
// Version is the optimistic-concurrency counter: 0 until the aggregate is
// first written, then incremented by the store on every successful Save.
type ConversationConfig struct {
	ConversationID string        `json:"conversationId"`
	Entries        []ConfigEntry `json:"entries"`
	Version        int64         `json:"version"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// NewConversationConfig returns an empty aggregate for id.
func NewConversationConfig(id string) ConversationConfig {
	return ConversationConfig{ConversationID: id, Entries: []ConfigEntry{}}
}

// Entry returns the entry named name.
func (c ConversationConfig) Entry(name string) (ConfigEntry, bool) {
	return lo.Find(c.Entries, func(e ConfigEntry) bool { return e.ConfigName == name })
}

// without returns a copy of the entries minus the one named name.
func (c ConversationConfig) without(name string) []ConfigEntry {
	return lo.Reject(c.Entries, func(e ConfigEntry, _ int) bool { return e.ConfigName == name })
}

// Clone deep-copies the aggregate so callers can't alias store state.
func (c ConversationConfig) Clone() ConversationConfig {
	out := c
	out.Entries = make([]ConfigEntry, len(c.Entries))
	for i, e := range c.Entries {
		out.Entries[i] = e.clone()
	}
	return out
}

func (e ConfigEntry) clone() ConfigEntry {
	out := e
	if e.Regex != nil {
		out.Regex = lo.ToPtr(*e.Regex)
	}
	if e.CronExpression != nil {
		out.CronExpression = lo.ToPtr(*e.CronExpression)
	}
	return out
}
