// Package sync backs up saved searches and config records as JSONL to one
// or more destinations on a cron schedule.
package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alfredjeanlab/datatable/internal/store"
)

// Destination is the interface for a sync target.
type Destination interface {
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
}

// Scheduler runs backups on a cron schedule.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	schedule     string
	location     *time.Location
	logger       *slog.Logger

	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports from the store to the given
// destinations whenever the standard five-field cron schedule fires. A nil
// location means UTC.
func NewScheduler(s store.Store, destinations []Destination, schedule string, location *time.Location, logger *slog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", schedule, err)
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        s,
		destinations: destinations,
		schedule:     schedule,
		location:     location,
		logger:       logger,
	}, nil
}

// Start runs an initial backup immediately, then one on every tick of the
// schedule. Overlapping runs are skipped.
func (s *Scheduler) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	logger := cronLogger{s.logger}
	c := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(s.schedule, func() { s.logRun(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule backup: %w", err)
	}
	s.cron = c

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logRun(ctx)
	}()
	c.Start()
	return nil
}

// Stop cancels in-flight backups and waits for running jobs to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.wg.Wait()
}

// RunOnce exports the store and writes the payload to every destination.
// The error joins every destination failure.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.store, &buf); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	data := buf.Bytes()

	var errs []error
	for i, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			errs = append(errs, fmt.Errorf("destination %d: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("backup completed", "destinations", len(s.destinations), "bytes", len(data))
	return nil
}

func (s *Scheduler) logRun(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("backup failed", "err", err)
	}
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
