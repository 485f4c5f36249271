package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"replybot/internal/configuration"
	"replybot/internal/task/engine"
	logx "replybot/pkg/logx"
)

// Dispatcher delivers a fired reply to its conversation.
type Dispatcher interface {
	SendReply(ctx context.Context, conversationID, reply string) error
}

// Replies implements configuration.Scheduler on top of Service. Each
// schedule-backed entry is one job named by its configuration.JobKey.
type Replies struct {
	sched    *Service
	dispatch Dispatcher
	timeout  time.Duration
	log      logx.Logger

	mu   sync.Mutex
	jobs map[configuration.JobKey]configuration.ConfigEntry
}

var _ configuration.Scheduler = (*Replies)(nil)

// NewReplies wires fired jobs to d. timeout bounds a single delivery.
func NewReplies(s *Service, d Dispatcher, timeout time.Duration, log logx.Logger) *Replies {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Replies{
		sched:    s,
		dispatch: d,
		timeout:  timeout,
		log:      log.With(logx.String("comp", "replies")),
		jobs:     map[configuration.JobKey]configuration.ConfigEntry{},
	}
}

// ScheduleMessage upserts the job for entry. Re-registering an unchanged
// entry keeps the running cron entry, so periodic reconciles don't reset it.
func (r *Replies) ScheduleMessage(_ context.Context, conversationID string, entry configuration.ConfigEntry) error {
	if !entry.Scheduled() {
		return errors.New("entry has no cron expression")
	}
	key := configuration.JobKey{ConversationID: conversationID, ConfigName: entry.ConfigName}
	name := key.String()
	spec := *entry.CronExpression

	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.jobs[key]; ok && *cur.CronExpression == spec && cur.Reply == entry.Reply && r.sched.Has(name) {
		return nil
	}

	reply := entry.Reply
	_, err := r.sched.AddCronOpt(name, spec, r.timeout, engine.TaskOptions{Overlap: engine.OverlapSkipIfRunning}, func(ctx context.Context) error {
		return r.dispatch.SendReply(ctx, conversationID, reply)
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	r.jobs[key] = configuration.ConfigEntry{
		ConfigName:     entry.ConfigName,
		CronExpression: &spec,
		Reply:          reply,
	}
	r.log.Debug("reply scheduled", logx.String("job", name), logx.String("spec", spec))
	return nil
}

// UnscheduleMessage removes the job. Unknown keys are not an error.
func (r *Replies) UnscheduleMessage(_ context.Context, conversationID string, entry configuration.ConfigEntry) error {
	key := configuration.JobKey{ConversationID: conversationID, ConfigName: entry.ConfigName}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, key)
	if r.sched.Remove(key.String()) {
		r.log.Debug("reply unscheduled", logx.String("job", key.String()))
	}
	return nil
}

// Prune removes every job whose key is not in keep and returns how many went.
func (r *Replies) Prune(keep map[configuration.JobKey]struct{}) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key := range r.jobs {
		if _, ok := keep[key]; ok {
			continue
		}
		delete(r.jobs, key)
		r.sched.Remove(key.String())
		n++
	}
	return n
}

// Keys lists the registered job keys.
func (r *Replies) Keys() []configuration.JobKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]configuration.JobKey, 0, len(r.jobs))
	for k := range r.jobs {
		out = append(out, k)
	}
	return out
}
