// Package workflow runs the job queue: a single orchestrator loop claims
// queued jobs and drives the translate pipeline, with exponential backoff
// for transient failures.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wikiloom/internal/cache"
	"wikiloom/internal/config"
	"wikiloom/internal/engine"
	"wikiloom/internal/ingest"
	"wikiloom/internal/mediawiki"
	"wikiloom/internal/store"
)

// RunContext carries per-run settings through the pipeline.
type RunContext struct {
	Run  *store.Run
	Mode cache.Mode
}

// Manager owns the orchestrator loop. Exactly one manager runs at a time;
// the daemon enforces this with a file lock.
type Manager struct {
	store    *store.Store
	cache    *cache.Cache
	gateway  *engine.Gateway
	wiki     mediawiki.Client
	ingestor *ingest.Ingestor
	cfg      *config.Config
	logger   *slog.Logger
}

// NewManager wires the pipeline components together.
func NewManager(s *store.Store, c *cache.Cache, g *engine.Gateway, wiki mediawiki.Client, cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		store:    s,
		cache:    c,
		gateway:  g,
		wiki:     wiki,
		ingestor: ingest.New(s, wiki, cfg, logger),
		cfg:      cfg,
		logger:   logger,
	}
}

// transientError marks a failure worth retrying with backoff.
type transientError struct {
	cause error
}

func (e *transientError) Error() string { return e.cause.Error() }
func (e *transientError) Unwrap() error { return e.cause }

// abortError marks a job that must stop without retrying and without
// counting as a failure, such as a state lock.
type abortError struct {
	reason string
}

func (e *abortError) Error() string { return e.reason }

// backoffDelay doubles per retry: 1s, 2s, 4s, then stays at 8s.
func backoffDelay(retries int) time.Duration {
	if retries > 3 {
		retries = 3
	}
	return time.Second << retries
}

// ProcessQueue drains the queue until no eligible job remains. Used by the
// one-shot CLI run command.
func (m *Manager) ProcessQueue(ctx context.Context, rc RunContext) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		job, err := m.store.Claim(ctx, time.Now())
		if err != nil {
			return err
		}
		if job == nil {
			return nil
		}
		m.handleJob(ctx, rc, job)
	}
}

// RunDaemon polls the queue until the context is canceled, ingesting recent
// changes whenever the queue goes idle.
func (m *Manager) RunDaemon(ctx context.Context, rc RunContext) error {
	reset, err := m.store.ResetRunning(ctx)
	if err != nil {
		return fmt.Errorf("recover running jobs: %w", err)
	}
	if reset > 0 && m.logger != nil {
		m.logger.Info("recovered interrupted jobs", slog.Int("count", reset))
	}

	poll := time.Duration(m.cfg.Workflow.QueuePollInterval) * time.Second
	if poll <= 0 {
		poll = 5 * time.Second
	}

	for {
		job, err := m.store.Claim(ctx, time.Now())
		if err != nil {
			return err
		}
		if job != nil {
			m.handleJob(ctx, rc, job)
			continue
		}

		if _, err := m.ingestor.IngestRecentChanges(ctx, m.cfg.Workflow.JobBatchSize); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if m.logger != nil {
				m.logger.Warn("recent changes poll failed", slog.Any("error", err))
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

func (m *Manager) handleJob(ctx context.Context, rc RunContext, job *store.Job) {
	logger := m.logger
	if logger != nil {
		logger = logger.With(
			slog.Int64("job", job.ID),
			slog.String("type", string(job.Type)),
			slog.String("page", job.PageTitle),
			slog.String("lang", job.Lang))
		logger.Info("job claimed", slog.Int("retries", job.Retries))
	}

	var err error
	switch job.Type {
	case store.JobTranslatePage:
		err = m.translatePage(ctx, rc, job)
	case store.JobSyncStatus:
		err = m.syncStatus(ctx, rc, job)
	case store.JobIngestPage:
		_, err = m.ingestor.IngestTitle(ctx, job.PageTitle)
	default:
		err = fmt.Errorf("unknown job type %q", job.Type)
	}

	switch {
	case err == nil:
		if markErr := m.store.MarkDone(ctx, job.ID); markErr != nil && logger != nil {
			logger.Error("mark done failed", slog.Any("error", markErr))
		}
		if logger != nil {
			logger.Info("job finished")
		}

	case ctx.Err() != nil:
		// Shutdown mid-job: put it back without burning a retry.
		if requeueErr := m.store.RequeueForRetry(ctx, job.ID, "interrupted by shutdown", time.Now()); requeueErr != nil && logger != nil {
			logger.Error("requeue on shutdown failed", slog.Any("error", requeueErr))
		}

	case isAbort(err):
		m.recordItem(ctx, rc, job, "aborted", err.Error())
		if markErr := m.store.MarkDone(ctx, job.ID); markErr != nil && logger != nil {
			logger.Error("mark done failed", slog.Any("error", markErr))
		}
		if logger != nil {
			logger.Info("job aborted", slog.String("reason", err.Error()))
		}

	case isTransient(err) && job.Retries < m.retryCap():
		delay := backoffDelay(job.Retries)
		requeueErr := m.store.RequeueForRetry(ctx, job.ID, err.Error(), time.Now().Add(delay))
		if errors.Is(requeueErr, store.ErrDuplicateQueued) {
			if logger != nil {
				logger.Info("retry superseded by newer job")
			}
			return
		}
		if requeueErr != nil && logger != nil {
			logger.Error("requeue failed", slog.Any("error", requeueErr))
		}
		if logger != nil {
			logger.Warn("job requeued",
				slog.Duration("backoff", delay),
				slog.Int("retries", job.Retries+1),
				slog.Any("error", err))
		}

	default:
		m.recordItem(ctx, rc, job, "failed", err.Error())
		if markErr := m.store.MarkError(ctx, job.ID, err.Error()); markErr != nil && logger != nil {
			logger.Error("mark error failed", slog.Any("error", markErr))
		}
		if logger != nil {
			logger.Error("job failed", slog.Any("error", err))
		}
	}
}

func (m *Manager) retryCap() int {
	if m.cfg.Workflow.RetryCap > 0 {
		return m.cfg.Workflow.RetryCap
	}
	return 4
}

func (m *Manager) recordItem(ctx context.Context, rc RunContext, job *store.Job, status, message string) {
	if rc.Run == nil {
		return
	}
	page := job.PageTitle
	lang := job.Lang
	item := store.RunItem{
		RunID:     rc.Run.ID,
		Kind:      string(job.Type),
		PageTitle: &page,
		Lang:      &lang,
		Status:    status,
	}
	if message != "" {
		item.Message = &message
	}
	if err := m.store.AddRunItem(ctx, item); err != nil && m.logger != nil {
		m.logger.Error("record run item failed", slog.Any("error", err))
	}
}

func isTransient(err error) bool {
	var transient *transientError
	return errors.As(err, &transient)
}

func isAbort(err error) bool {
	var abort *abortError
	return errors.As(err, &abort)
}
