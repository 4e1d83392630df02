// internal/app/registry.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"guild_scheduler_bot/internal/domain/apperrors"
	"guild_scheduler_bot/internal/domain/guildconfig"
)

const defaultFireTimeout = 2 * time.Minute

// TriggerEngine is the part of *cron.Cron the registry schedules on.
type TriggerEngine interface {
	AddFunc(spec string, cmd func()) (cron.EntryID, error)
	Remove(id cron.EntryID)
	Entry(id cron.EntryID) cron.Entry
}

// JobRunner executes one fire of a recurring job. It owns its own error handling:
// a recurring job is never retried before its next scheduled fire.
type JobRunner func(ctx context.Context, guildID string, cfg guildconfig.RecurringConfig)

// JobKey identifies a recurring job.
type JobKey struct {
	GuildID string
	Kind    guildconfig.Kind
}

// ActiveJob describes a live trigger.
type ActiveJob struct {
	Key       JobKey
	Spec      string
	ChannelID string
	NextFire  time.Time
}

type triggerHandle struct {
	entryID     cron.EntryID
	spec        string
	channelID   string
	fingerprint string
}

// Registry keeps at most one live daily trigger per (guild, kind) in line with the
// stored configuration. Reconcile calls for the same key are serialized; different
// keys proceed independently.
type Registry struct {
	engine      TriggerEngine
	logger      *logrus.Entry
	fireTimeout time.Duration
	now         func() time.Time

	runnersMu sync.RWMutex
	runners   map[guildconfig.Kind]JobRunner

	mu       sync.Mutex // guards locks, handles and lastSlot, never held across engine calls
	locks    map[JobKey]*keyLock
	handles  map[JobKey]triggerHandle
	lastSlot map[JobKey]string
}

// keyLock serializes work on one key. refs counts holders and waiters so the entry
// can be dropped once nobody needs it.
type keyLock struct {
	sync.Mutex
	refs int
}

func NewRegistry(engine TriggerEngine, logger *logrus.Entry) *Registry {
	return &Registry{
		engine:      engine,
		logger:      logger.WithField("component", "recurring_registry"),
		fireTimeout: defaultFireTimeout,
		now:         time.Now,
		runners:     make(map[guildconfig.Kind]JobRunner),
		locks:       make(map[JobKey]*keyLock),
		handles:     make(map[JobKey]triggerHandle),
		lastSlot:    make(map[JobKey]string),
	}
}

// Register binds the runner executed when a trigger of kind fires.
func (r *Registry) Register(kind guildconfig.Kind, run JobRunner) {
	r.runnersMu.Lock()
	r.runners[kind] = run
	r.runnersMu.Unlock()
}

// Reconcile brings the trigger for (guildID, kind) in line with cfg.
//
// A nil, disabled or incomplete cfg removes the trigger. An invalid time or timezone
// returns a *apperrors.ConfigurationError and leaves any existing trigger running.
func (r *Registry) Reconcile(ctx context.Context, guildID string, kind guildconfig.Kind, cfg *guildconfig.RecurringConfig) error {
	key := JobKey{GuildID: guildID, Kind: kind}
	unlock := r.lockKey(key)
	defer unlock()
	return r.reconcileLocked(key, cfg)
}

func (r *Registry) reconcileLocked(key JobKey, cfg *guildconfig.RecurringConfig) error {
	kind := key.Kind
	logCtx := r.logger.WithFields(logrus.Fields{"guild_id": key.GuildID, "kind": kind})

	if !cfg.Schedulable() {
		if r.cancel(key) {
			logCtx.Info("Recurring job disabled; trigger removed")
		}
		return nil
	}

	r.runnersMu.RLock()
	run, ok := r.runners[kind]
	r.runnersMu.RUnlock()
	if !ok {
		return apperrors.NewConfigurationError("kind", string(kind), "no recurring job registered for this kind")
	}

	spec, err := DailySpec(cfg.Time, cfg.Timezone)
	if err != nil {
		logCtx.WithError(err).Warn("Rejected recurring config; keeping current schedule")
		return err
	}

	current, exists := r.handle(key)
	fingerprint := cfg.Fingerprint()
	if exists && current.fingerprint == fingerprint {
		return nil
	}

	snapshot := *cfg
	snapshot.JobKind = kind
	entryID, err := r.engine.AddFunc(spec, func() { r.fire(key, snapshot, run) })
	if err != nil {
		return fmt.Errorf("%w: schedule %q: %v", apperrors.ErrConfiguration, spec, err)
	}

	// New trigger is live before the old one goes away.
	r.mu.Lock()
	r.handles[key] = triggerHandle{entryID: entryID, spec: spec, channelID: cfg.ChannelID, fingerprint: fingerprint}
	r.mu.Unlock()
	if exists {
		r.engine.Remove(current.entryID)
	}

	logCtx.WithFields(logrus.Fields{
		"spec":       spec,
		"channel_id": cfg.ChannelID,
		"next_fire":  nextFire(spec, r.now()),
		"replaced":   exists,
	}).Info("Recurring job scheduled")
	return nil
}

// Seed brings every stored recurring config and every live trigger in line with the
// store. ListAll only enumerates keys: each key is re-read under its lock, so a change
// reconciled after the listing is never undone by it. Triggers whose document no longer
// exists are removed.
func (r *Registry) Seed(ctx context.Context, repo guildconfig.Repository) error {
	docs, err := repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: list guild configs: %v", apperrors.ErrTransient, err)
	}

	keys := make(map[JobKey]bool)
	for _, doc := range docs {
		if doc.Config != nil && doc.Config.Kind().IsRecurring() {
			keys[JobKey{GuildID: doc.GuildID, Kind: doc.Config.Kind()}] = true
		}
	}
	for _, key := range r.keys() {
		keys[key] = true
	}

	var failed int
	for key := range keys {
		if err := r.resync(ctx, repo, key); err != nil {
			failed++
			r.logger.WithError(err).WithFields(logrus.Fields{"guild_id": key.GuildID, "kind": key.Kind}).Warn("Failed to reconcile recurring config during seed")
		}
	}

	r.logger.WithFields(logrus.Fields{"documents": len(docs), "active": r.Len(), "failed": failed}).Info("Recurring registry seeded")
	return nil
}

// resync reconciles key against the document currently stored for it.
// A lookup failure leaves the trigger as it is.
func (r *Registry) resync(ctx context.Context, repo guildconfig.Repository, key JobKey) error {
	unlock := r.lockKey(key)
	defer unlock()

	cfg, err := repo.Get(ctx, key.GuildID, key.Kind)
	if err != nil && !errors.Is(err, guildconfig.ErrNotFound) {
		return fmt.Errorf("%w: load guild config: %v", apperrors.ErrTransient, err)
	}
	rc, _ := cfg.(*guildconfig.RecurringConfig)
	return r.reconcileLocked(key, rc)
}

// Watch feeds the repository change stream into Reconcile until ctx is done.
// Repositories open the stream with a Resync change, so the registry is seeded once
// the subscription is live and no write is lost in between.
func (r *Registry) Watch(ctx context.Context, repo guildconfig.Repository) error {
	err := repo.Subscribe(ctx, func(change guildconfig.Change) {
		if change.Resync {
			if err := r.Seed(ctx, repo); err != nil {
				r.logger.WithError(err).Error("Resync after change feed gap failed")
			}
			return
		}
		if !change.Kind.IsRecurring() {
			return
		}
		rc, _ := change.Config.(*guildconfig.RecurringConfig)
		if err := r.Reconcile(ctx, change.GuildID, change.Kind, rc); err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{"guild_id": change.GuildID, "kind": change.Kind}).Warn("Failed to reconcile changed config")
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Active returns the live triggers ordered by guild and kind.
func (r *Registry) Active() []ActiveJob {
	return r.ActiveAt(r.now())
}

// ActiveAt is Active with next fire times computed from now.
func (r *Registry) ActiveAt(now time.Time) []ActiveJob {
	r.mu.Lock()
	jobs := make([]ActiveJob, 0, len(r.handles))
	for key, h := range r.handles {
		jobs = append(jobs, ActiveJob{Key: key, Spec: h.spec, ChannelID: h.channelID})
	}
	r.mu.Unlock()

	for i := range jobs {
		jobs[i].NextFire = nextFire(jobs[i].Spec, now)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].Key.GuildID != jobs[j].Key.GuildID {
			return jobs[i].Key.GuildID < jobs[j].Key.GuildID
		}
		return jobs[i].Key.Kind < jobs[j].Key.Kind
	})
	return jobs
}

// Len is the number of live triggers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Stop removes every trigger. Fires already running are not interrupted.
func (r *Registry) Stop() {
	for _, key := range r.keys() {
		unlock := r.lockKey(key)
		r.cancel(key)
		unlock()
	}
}

func (r *Registry) fire(key JobKey, cfg guildconfig.RecurringConfig, run JobRunner) {
	logCtx := r.logger.WithFields(logrus.Fields{"guild_id": key.GuildID, "kind": key.Kind, "channel_id": cfg.ChannelID})
	if !r.claimSlot(key, cfg) {
		logCtx.Info("Recurring job already ran at this local time today; skipping repeated minute")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.fireTimeout)
	defer cancel()

	logCtx.Info("Recurring job triggered")
	run(ctx, key.GuildID, cfg)
}

// claimSlot records that key fires for today's HH:MM in the config's zone. It returns
// false when that wall-clock slot already fired, which happens when a DST fall-back
// repeats the local minute.
func (r *Registry) claimSlot(key JobKey, cfg guildconfig.RecurringConfig) bool {
	loc, err := guildconfig.LoadTimezone(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	slot := r.now().In(loc).Format("2006-01-02") + " " + cfg.Time

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastSlot[key] == slot {
		return false
	}
	r.lastSlot[key] = slot
	return true
}

// lockKey acquires the lock for key and returns its release func.
func (r *Registry) lockKey(key JobKey) func() {
	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &keyLock{}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, key)
		}
		r.mu.Unlock()
	}
}

func (r *Registry) handle(key JobKey) (triggerHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[key]
	return h, ok
}

// cancel must be called with the key lock held.
func (r *Registry) cancel(key JobKey) bool {
	r.mu.Lock()
	h, ok := r.handles[key]
	delete(r.handles, key)
	delete(r.lastSlot, key)
	r.mu.Unlock()
	if ok {
		r.engine.Remove(h.entryID)
	}
	return ok
}

func (r *Registry) keys() []JobKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]JobKey, 0, len(r.handles))
	for k := range r.handles {
		keys = append(keys, k)
	}
	return keys
}

// DailySpec builds the cron spec firing every day at hhmm wall-clock time in the zone.
// The zone's own rules decide the instant, so the local time is kept across DST changes.
func DailySpec(hhmm, timezone string) (string, error) {
	clock, err := guildconfig.ParseClock(hhmm)
	if err != nil {
		return "", err
	}
	loc, err := guildconfig.LoadTimezone(timezone)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CRON_TZ=%s %d %d * * *", loc.String(), clock.Minute, clock.Hour), nil
}

func nextFire(spec string, now time.Time) time.Time {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(now)
}
