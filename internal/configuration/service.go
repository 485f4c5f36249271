package configuration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logx "replybot/pkg/logx"
)

// Service owns the configuration lifecycle of every conversation and keeps
// the scheduler in lockstep with what the store holds.
//
// Mutations of one conversation are serialized in-process; the store's
// version check catches writers in other processes.
type Service struct {
	store Store
	sched Scheduler
	log   logx.Logger
	now   func() time.Time

	locks *keyedMutex
	// restoreMu lets Restore observe a quiescent store while it reconciles.
	restoreMu sync.RWMutex
}

func NewService(store Store, sched Scheduler, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store: store,
		sched: sched,
		log:   log.With(logx.String("comp", "configuration")),
		now:   time.Now,
		locks: newKeyedMutex(),
	}
}

func (s *Service) lock(id string) func() {
	s.restoreMu.RLock()
	unlock := s.locks.Lock(id)
	return func() {
		unlock()
		s.restoreMu.RUnlock()
	}
}

// InitializeConversation creates an empty configuration set for id.
// An already initialized conversation is left untouched.
func (s *Service) InitializeConversation(ctx context.Context, id string) error {
	if id == "" {
		return &ValidationError{Reason: ReasonMissingConversationID}
	}
	defer s.lock(id)()

	_, ok, err := s.store.Find(ctx, id)
	if err != nil {
		return fmt.Errorf("initialize conversation %s: %w", id, storeErr(err))
	}
	if ok {
		s.log.Debug("conversation already initialized", logx.String("conversation", id))
		return nil
	}

	cfg := NewConversationConfig(id)
	cfg.UpdatedAt = s.now()
	if err := s.store.Create(ctx, cfg); err != nil {
		if errors.Is(err, ErrConversationExists) {
			return nil
		}
		return fmt.Errorf("initialize conversation %s: %w", id, storeErr(err))
	}
	s.log.Info("conversation initialized", logx.String("conversation", id))
	return nil
}

// RemoveConversation unschedules every cron entry of id, then deletes its set.
// If any unschedule fails nothing is deleted.
func (s *Service) RemoveConversation(ctx context.Context, id string) error {
	defer s.lock(id)()

	cfg, ok, err := s.store.Find(ctx, id)
	if err != nil {
		return fmt.Errorf("remove conversation %s: %w", id, storeErr(err))
	}
	if !ok {
		return fmt.Errorf("remove conversation %s: %w", id, ErrConversationNotFound)
	}

	var unscheduled []ConfigEntry
	for _, e := range cfg.Entries {
		if !e.Scheduled() {
			continue
		}
		if err := s.unschedule(ctx, id, e); err != nil {
			if cerr := s.scheduleAll(ctx, id, unscheduled); cerr != nil {
				return &PartialFailureError{Op: "remove conversation", ConversationID: id, ConfigName: e.ConfigName, Cause: err, Compensation: cerr}
			}
			return fmt.Errorf("remove conversation %s: %w", id, err)
		}
		unscheduled = append(unscheduled, e)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		err = storeErr(err)
		if cerr := s.scheduleAll(ctx, id, unscheduled); cerr != nil {
			return &PartialFailureError{Op: "remove conversation", ConversationID: id, Cause: err, Compensation: cerr}
		}
		return fmt.Errorf("remove conversation %s: %w", id, err)
	}
	s.log.Info("conversation removed", logx.String("conversation", id), logx.Int("unscheduled", len(unscheduled)))
	return nil
}

// ListConfigurations returns a copy of the entries of id.
// An unknown conversation yields an empty list.
func (s *Service) ListConfigurations(ctx context.Context, id string) ([]ConfigEntry, error) {
	cfg, ok, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list configurations of %s: %w", id, storeErr(err))
	}
	if !ok {
		return []ConfigEntry{}, nil
	}
	return cfg.Clone().Entries, nil
}

// AddConfiguration validates entry and stores it in id's set, replacing any
// entry with the same name. Cron entries are registered before the save; a
// failed save undoes the registration.
func (s *Service) AddConfiguration(ctx context.Context, id string, entry ConfigEntry) error {
	if err := Validate(entry); err != nil {
		return fmt.Errorf("add configuration %q to %s: %w", entry.ConfigName, id, err)
	}
	entry = entry.clone()
	defer s.lock(id)()

	cfg, ok, err := s.store.Find(ctx, id)
	if err != nil {
		return fmt.Errorf("add configuration %q to %s: %w", entry.ConfigName, id, storeErr(err))
	}
	if !ok {
		return fmt.Errorf("add configuration %q to %s: %w", entry.ConfigName, id, ErrConversationNotFound)
	}

	previous, replaced := cfg.Entry(entry.ConfigName)
	next := cfg.Clone()
	next.Entries = append(next.without(entry.ConfigName), entry)
	next.UpdatedAt = s.now()

	switch {
	case entry.Scheduled():
		err = s.schedule(ctx, id, entry)
	case replaced && previous.Scheduled():
		// regex-only replacement of a cron entry: the old job must go
		err = s.unschedule(ctx, id, previous)
	}
	if err != nil {
		return fmt.Errorf("add configuration %q to %s: %w", entry.ConfigName, id, err)
	}

	if err := s.store.Save(ctx, next); err != nil {
		err = storeErr(err)
		if cerr := s.undoAdd(ctx, id, entry, previous, replaced); cerr != nil {
			return &PartialFailureError{Op: "add configuration", ConversationID: id, ConfigName: entry.ConfigName, Cause: err, Compensation: cerr}
		}
		return fmt.Errorf("add configuration %q to %s: %w", entry.ConfigName, id, err)
	}

	if replaced {
		s.log.Info("configuration replaced", logx.String("conversation", id), logx.String("name", entry.ConfigName), logx.Bool("scheduled", entry.Scheduled()))
	} else {
		s.log.Info("configuration added", logx.String("conversation", id), logx.String("name", entry.ConfigName), logx.Bool("scheduled", entry.Scheduled()))
	}
	return nil
}

func (s *Service) undoAdd(ctx context.Context, id string, entry, previous ConfigEntry, replaced bool) error {
	if replaced && previous.Scheduled() {
		// upsert by key puts the old job back in place of the new one
		return s.schedule(ctx, id, previous)
	}
	if entry.Scheduled() {
		return s.unschedule(ctx, id, entry)
	}
	return nil
}

// RemoveConfiguration unschedules and deletes the entry called name.
// A failed unschedule aborts the removal.
func (s *Service) RemoveConfiguration(ctx context.Context, id, name string) error {
	defer s.lock(id)()

	cfg, ok, err := s.store.Find(ctx, id)
	if err != nil {
		return fmt.Errorf("remove configuration %q from %s: %w", name, id, storeErr(err))
	}
	if !ok {
		return fmt.Errorf("remove configuration %q from %s: %w", name, id, ErrConversationNotFound)
	}
	entry, found := cfg.Entry(name)
	if !found {
		return &ConfigurationNotFoundError{Name: name}
	}

	if err := s.unschedule(ctx, id, entry); err != nil {
		return fmt.Errorf("remove configuration %q from %s: %w", name, id, err)
	}

	next := cfg.Clone()
	next.Entries = next.without(name)
	next.UpdatedAt = s.now()
	if err := s.store.Save(ctx, next); err != nil {
		err = storeErr(err)
		if entry.Scheduled() {
			if cerr := s.schedule(ctx, id, entry); cerr != nil {
				return &PartialFailureError{Op: "remove configuration", ConversationID: id, ConfigName: name, Cause: err, Compensation: cerr}
			}
		}
		return fmt.Errorf("remove configuration %q from %s: %w", name, id, err)
	}
	s.log.Info("configuration removed", logx.String("conversation", id), logx.String("name", name))
	return nil
}

// Restore registers every persisted cron entry with the scheduler and, when
// the scheduler supports it, drops registrations with no persisted entry.
// It returns the number of registered jobs.
func (s *Service) Restore(ctx context.Context) (int, error) {
	s.restoreMu.Lock()
	defer s.restoreMu.Unlock()

	ids, err := s.store.ConversationIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore schedules: %w", storeErr(err))
	}

	keep := map[JobKey]struct{}{}
	var errs []error
	registered := 0
	for _, id := range ids {
		cfg, ok, err := s.store.Find(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", id, storeErr(err)))
			continue
		}
		if !ok {
			continue
		}
		for _, e := range cfg.Entries {
			if !e.Scheduled() {
				continue
			}
			keep[JobKey{ConversationID: id, ConfigName: e.ConfigName}] = struct{}{}
			if err := s.schedule(ctx, id, e); err != nil {
				errs = append(errs, fmt.Errorf("restore %s/%s: %w", id, e.ConfigName, err))
				continue
			}
			registered++
		}
	}

	// Pruning after a failed read could drop jobs we simply did not see.
	if p, ok := s.sched.(pruner); ok && len(errs) == 0 {
		if n := p.Prune(keep); n > 0 {
			s.log.Info("stale schedules pruned", logx.Int("count", n))
		}
	}
	s.log.Debug("schedules restored", logx.Int("conversations", len(ids)), logx.Int("jobs", registered))
	return registered, errors.Join(errs...)
}

func (s *Service) schedule(ctx context.Context, id string, e ConfigEntry) error {
	return schedulerErr(s.sched.ScheduleMessage(ctx, id, e))
}

func (s *Service) unschedule(ctx context.Context, id string, e ConfigEntry) error {
	return schedulerErr(s.sched.UnscheduleMessage(ctx, id, e))
}

func (s *Service) scheduleAll(ctx context.Context, id string, entries []ConfigEntry) error {
	var errs []error
	for _, e := range entries {
		if err := s.schedule(ctx, id, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrConversationExists) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func schedulerErr(err error) error {
	if err == nil || errors.Is(err, ErrScheduler) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrScheduler, err)
}
