package lifecycle

import (
	"context"
	"log"
	"time"

	"github.com/ctfleet/instancer/internal/models"
	"github.com/robfig/cron/v3"
)

// sweepSpec is the polling granularity of the expiry scheduler. It is not
// the expiry duration: every fire re-reads the registry and reclaims
// whatever has passed its expires_at.
const sweepSpec = "@every 5s"

// sweeper runs the periodic expiry sweep. It is owned by the Manager and
// rebuilt whenever settings are replaced.
type sweeper struct {
	cron *cron.Cron
}

// startSchedulerLocked starts a sweeper when a positive expiration is
// configured. Callers hold m.mu.
func (m *Manager) startSchedulerLocked() {
	if m.st.ExpirationSeconds() <= 0 {
		return
	}
	c := cron.New()
	c.AddFunc(sweepSpec, func() {
		m.Sweep(context.Background())
	})
	c.Start()
	m.sched = &sweeper{cron: c}
}

// stopSchedulerLocked tears down the running sweeper, if any. Callers hold
// m.mu.
func (m *Manager) stopSchedulerLocked() {
	if m.sched == nil {
		return
	}
	m.sched.cron.Stop()
	m.sched = nil
}

// Sweep reclaims every expired instance. A failed engine kill is logged and
// the record is deleted anyway: an unreachable engine can't be fixed by
// retrying within the sweep, and keeping the record would grow the registry
// unboundedly. A manual purge can reconcile any ghost containers later.
func (m *Manager) Sweep(ctx context.Context) {
	var records []models.Instance
	if err := m.db.Find(&records).Error; err != nil {
		log.Printf("lifecycle: sweep: load instances: %v", err)
		return
	}

	now := time.Now().Unix()
	for _, rec := range records {
		if rec.ExpiresAt >= now {
			continue
		}
		if err := m.ensure(ctx); err != nil {
			log.Printf("lifecycle: sweep: instance %s: %v", rec.ID, err)
		} else if err := m.eng.Kill(ctx, rec.ID); err != nil {
			log.Printf("lifecycle: sweep: kill instance %s: %v", rec.ID, err)
		}
		if err := m.db.Delete(&models.Instance{}, "id = ?", rec.ID).Error; err != nil {
			log.Printf("lifecycle: sweep: delete instance %s: %v", rec.ID, err)
		}
	}
}
