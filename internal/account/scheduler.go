package account

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler drives the periodic background work: super admin reconciliation
// and, when configured, snapshot export. One instance runs per process.
type Scheduler struct {
	bootstrap *BootstrapService
	export    *ExportService
	stopCh    chan struct{}
}

func NewScheduler(bootstrap *BootstrapService, export *ExportService) *Scheduler {
	return &Scheduler{
		bootstrap: bootstrap,
		export:    export,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the scheduler loop in a goroutine.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop signals the scheduler to shut down.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	// First pass shortly after startup, once migrations and the initial
	// reconciliation in main have settled.
	select {
	case <-time.After(30 * time.Second):
		s.tick()
	case <-s.stopCh:
		return
	}

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := s.bootstrap.ReconcileSuperAdmin(ctx); err != nil {
		slog.Error("super admin reconciliation failed", "error", err)
	}

	if s.export != nil && s.export.Due(time.Now().UTC()) {
		if _, err := s.export.Run(ctx); err != nil {
			slog.Error("snapshot export failed", "error", err)
		}
	}
}
