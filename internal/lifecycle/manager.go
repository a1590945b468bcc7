// Package lifecycle implements the container lifecycle manager: it
// provisions challenge instances on the engine, tracks them in the instance
// registry, and reclaims them when they expire.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ctfleet/instancer/internal/engine"
	"github.com/ctfleet/instancer/internal/models"
	"github.com/ctfleet/instancer/internal/settings"
	"github.com/google/shlex"
	"gorm.io/gorm"
)

// Instance view statuses returned to collaborators.
const (
	StatusCreated        = "created"
	StatusAlreadyRunning = "already_running"
	StatusNotStarted     = "not_started"
)

// Engine is the contract the manager needs from the container engine
// adapter. *engine.Client implements it; tests substitute fakes.
type Engine interface {
	SetEndpoint(endpoint string)
	Connect(ctx context.Context) error
	Connected() bool
	Ping(ctx context.Context) bool
	StartInstance(ctx context.Context, spec engine.StartSpec) (string, error)
	PublishedPort(ctx context.Context, id string) (int, error)
	IsRunning(ctx context.Context, id string) (bool, error)
	Kill(ctx context.Context, id string) error
	Images(ctx context.Context) ([]string, error)
	Close() error
}

// Allocator finds a free host port near the preferred one.
type Allocator interface {
	Allocate(preferred int) (int, error)
}

// View is the collaborator-facing description of one instance.
type View struct {
	Status      string `json:"status"`
	InstanceID  string `json:"instance_id,omitempty"`
	Hostname    string `json:"hostname,omitempty"`
	Port        int    `json:"port,omitempty"`
	ConnectType string `json:"connect,omitempty"`
	SSHUsername string `json:"ssh_username,omitempty"`
	SSHPassword string `json:"ssh_password,omitempty"`
	Expires     int64  `json:"expires,omitempty"`
}

// RunningInstance is one registry row enriched for the admin listing.
type RunningInstance struct {
	InstanceID string `json:"instance_id"`
	Challenge  string `json:"challenge"`
	Image      string `json:"image"`
	TeamID     *uint  `json:"team_id,omitempty"`
	UserID     uint   `json:"user_id"`
	Port       int    `json:"port"`
	Created    int64  `json:"created"`
	Expires    int64  `json:"expires"`
	IsRunning  bool   `json:"is_running"`
}

// Manager owns the engine connection handle, the expiry scheduler, and all
// mutations of the instance registry. Request handlers and the sweep never
// touch the registry directly.
type Manager struct {
	db         *gorm.DB
	eng        Engine
	alloc      Allocator
	maxPerUser int

	mu    sync.Mutex // guards settings and scheduler swaps
	st    settings.Settings
	sched *sweeper
}

// New builds a Manager. It does not connect; call ApplySettings with the
// persisted settings to establish the engine connection and start the
// expiry scheduler.
func New(db *gorm.DB, eng Engine, alloc Allocator, maxPerUser int) *Manager {
	if maxPerUser < 1 {
		maxPerUser = 1
	}
	return &Manager{
		db:         db,
		eng:        eng,
		alloc:      alloc,
		maxPerUser: maxPerUser,
	}
}

// Settings returns the currently applied settings.
func (m *Manager) Settings() settings.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st
}

// ApplySettings replaces the engine settings wholesale. Any running expiry
// scheduler is torn down first so two schedulers never race; the engine is
// reconnected only when an endpoint is configured, and the scheduler is
// rebuilt with the new expiration.
func (m *Manager) ApplySettings(ctx context.Context, st settings.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopSchedulerLocked()
	m.st = st
	m.eng.SetEndpoint(st.EngineEndpoint)

	if st.EngineEndpoint == "" {
		m.eng.Close()
		return nil
	}
	if err := m.eng.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	m.startSchedulerLocked()
	return nil
}

// Shutdown stops the expiry scheduler and releases the engine handle.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopSchedulerLocked()
	m.eng.Close()
}

// Connected reports whether the engine handle is currently healthy.
func (m *Manager) Connected(ctx context.Context) bool {
	return m.eng.Ping(ctx)
}

// ensure is the guarded entry for engine-affecting operations: verify the
// handle is healthy, attempt exactly one reconnect if not, and fail with
// ErrEngineUnavailable otherwise. No retry loop beyond that; the caller
// retries the whole operation later.
func (m *Manager) ensure(ctx context.Context) error {
	if m.eng.Ping(ctx) {
		return nil
	}
	if err := m.eng.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if !m.eng.Connected() {
		return ErrEngineUnavailable
	}
	return nil
}

// Request provisions an instance of the challenge for the subject, or
// returns the existing one if the engine still reports it running. The
// quota is counted against the user even in team mode, so users can't stack
// containers by switching teams.
func (m *Manager) Request(ctx context.Context, challengeID, subjectID, userID uint, isTeam bool) (View, error) {
	chal, err := m.challenge(challengeID)
	if err != nil {
		return View{}, err
	}

	var held int64
	if err := m.db.Model(&models.Instance{}).Where("user_id = ?", userID).Count(&held).Error; err != nil {
		return View{}, fmt.Errorf("lifecycle: count instances: %w", err)
	}
	if held >= int64(m.maxPerUser) {
		return View{}, fmt.Errorf("%w: at most %d at a time", ErrQuotaExceeded, m.maxPerUser)
	}

	if view, ok, err := m.existingView(ctx, chal, subjectID, isTeam); err != nil {
		return View{}, err
	} else if ok {
		return view, nil
	}

	st := m.Settings()
	memoryMB, cpu, err := resourceLimits(st)
	if err != nil {
		return View{}, err
	}
	binds, err := parseVolumes(chal.Volumes)
	if err != nil {
		return View{}, err
	}
	command, err := splitCommand(chal.Command)
	if err != nil {
		return View{}, err
	}

	if err := m.ensure(ctx); err != nil {
		return View{}, err
	}

	hostPort, err := m.alloc.Allocate(chal.InternalPort)
	if err != nil {
		return View{}, fmt.Errorf("%w: %v", ErrNoPortAvailable, err)
	}

	id, err := m.eng.StartInstance(ctx, engine.StartSpec{
		Image:   chal.Image,
		Command: command,
		Env: map[string]string{
			"CHALLENGE_ID": fmt.Sprint(challengeID),
			"TEAM_ID":      fmt.Sprint(subjectID),
			"USER_ID":      fmt.Sprint(userID),
		},
		InternalPort: chal.InternalPort,
		HostPort:     hostPort,
		MemoryMB:     memoryMB,
		CPU:          cpu,
		Binds:        binds,
	})
	if err != nil {
		if errors.Is(err, engine.ErrImageNotFound) {
			return View{}, fmt.Errorf("%w: %s", ErrImageNotFound, chal.Image)
		}
		return View{}, engineError(err)
	}

	// The engine is authoritative for the published port; the allocator's
	// probe was only a hint.
	published, err := m.eng.PublishedPort(ctx, id)
	if err != nil {
		return View{}, fmt.Errorf("%w: %v", ErrPortResolutionFailed, err)
	}

	now := time.Now().Unix()
	expires := now + m.Settings().ExpirationSeconds()
	record := models.Instance{
		ID:          id,
		ChallengeID: chal.ID,
		UserID:      userID,
		Port:        published,
		CreatedAt:   now,
		ExpiresAt:   expires,
	}
	if isTeam {
		record.TeamID = &subjectID
	}
	if err := m.db.Create(&record).Error; err != nil {
		return View{}, fmt.Errorf("lifecycle: persist instance: %w", err)
	}

	view := m.viewOf(chal, record)
	view.Status = StatusCreated
	return view, nil
}

// Renew pushes the instance's expiry out to now + the configured duration.
// Renewals are anchored to the current time, not the prior expiry.
func (m *Manager) Renew(ctx context.Context, challengeID, subjectID uint, isTeam bool) (View, error) {
	chal, err := m.challenge(challengeID)
	if err != nil {
		return View{}, err
	}
	record, err := m.record(chal.ID, subjectID, isTeam)
	if err != nil {
		return View{}, err
	}

	record.ExpiresAt = time.Now().Unix() + m.Settings().ExpirationSeconds()
	if err := m.db.Model(&models.Instance{}).Where("id = ?", record.ID).
		Update("expires_at", record.ExpiresAt).Error; err != nil {
		return View{}, fmt.Errorf("lifecycle: renew instance: %w", err)
	}

	return m.viewOf(chal, record), nil
}

// Instance reports the subject's instance of the challenge, cleaning up a
// stale record on the way. It never creates anything; with no live
// instance the view's status is not_started.
func (m *Manager) Instance(ctx context.Context, challengeID, subjectID uint, isTeam bool) (View, error) {
	chal, err := m.challenge(challengeID)
	if err != nil {
		return View{}, err
	}
	if view, ok, err := m.existingView(ctx, chal, subjectID, isTeam); err != nil {
		return View{}, err
	} else if ok {
		return view, nil
	}
	return View{Status: StatusNotStarted}, nil
}

// Stop kills the container and deletes its registry record. A container the
// engine already lost counts as killed; any other engine failure leaves the
// record intact so a later stop can retry.
func (m *Manager) Stop(ctx context.Context, instanceID string) error {
	if err := m.ensure(ctx); err != nil {
		return err
	}
	if err := m.eng.Kill(ctx, instanceID); err != nil {
		return engineError(err)
	}

	result := m.db.Delete(&models.Instance{}, "id = ?", instanceID)
	if result.Error != nil {
		return fmt.Errorf("lifecycle: delete instance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInstanceNotFound
	}
	return nil
}

// IsRunning reports whether the engine currently runs the container. A
// container the engine doesn't know is not running, not an error.
func (m *Manager) IsRunning(ctx context.Context, instanceID string) (bool, error) {
	if err := m.ensure(ctx); err != nil {
		return false, err
	}
	running, err := m.eng.IsRunning(ctx, instanceID)
	if err != nil {
		return false, engineError(err)
	}
	return running, nil
}

// ListImages returns the sorted image tags available on the engine.
func (m *Manager) ListImages(ctx context.Context) ([]string, error) {
	if err := m.ensure(ctx); err != nil {
		return nil, err
	}
	tags, err := m.eng.Images(ctx)
	if err != nil {
		return nil, engineError(err)
	}
	return tags, nil
}

// ConnectType returns how players connect to the challenge (tcp, ssh, ...).
func (m *Manager) ConnectType(challengeID uint) (string, error) {
	chal, err := m.challenge(challengeID)
	if err != nil {
		return "", err
	}
	return chal.ConnectType, nil
}

// ListRunning enumerates every tracked instance, newest first, with its
// engine-derived running state for the admin dashboard. An engine failure
// on one row degrades that row to not running instead of failing the list.
func (m *Manager) ListRunning(ctx context.Context) ([]RunningInstance, error) {
	var records []models.Instance
	if err := m.db.Preload("Challenge").Order("created_at desc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("lifecycle: list instances: %w", err)
	}

	out := make([]RunningInstance, 0, len(records))
	for _, rec := range records {
		running := false
		if m.ensure(ctx) == nil {
			if r, err := m.eng.IsRunning(ctx, rec.ID); err == nil {
				running = r
			}
		}
		out = append(out, RunningInstance{
			InstanceID: rec.ID,
			Challenge:  fmt.Sprintf("%s [%d]", rec.Challenge.Name, rec.ChallengeID),
			Image:      rec.Challenge.Image,
			TeamID:     rec.TeamID,
			UserID:     rec.UserID,
			Port:       rec.Port,
			Created:    rec.CreatedAt,
			Expires:    rec.ExpiresAt,
			IsRunning:  running,
		})
	}
	return out, nil
}

// PurgeAll stops every tracked instance, best effort. Failures are logged
// and counted, not propagated, so one stuck container doesn't block the
// purge.
func (m *Manager) PurgeAll(ctx context.Context) int {
	var records []models.Instance
	if err := m.db.Find(&records).Error; err != nil {
		log.Printf("lifecycle: purge: load instances: %v", err)
		return 0
	}

	purged := 0
	for _, rec := range records {
		if err := m.Stop(ctx, rec.ID); err != nil && !errors.Is(err, ErrInstanceNotFound) {
			log.Printf("lifecycle: purge instance %s: %v", rec.ID, err)
			continue
		}
		purged++
	}
	return purged
}

// challenge resolves the challenge template.
func (m *Manager) challenge(id uint) (models.Challenge, error) {
	var chal models.Challenge
	if err := m.db.First(&chal, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Challenge{}, ErrChallengeNotFound
		}
		return models.Challenge{}, fmt.Errorf("lifecycle: load challenge: %w", err)
	}
	return chal, nil
}

// record finds the subject's instance of the challenge.
func (m *Manager) record(challengeID, subjectID uint, isTeam bool) (models.Instance, error) {
	query := m.db.Where("challenge_id = ?", challengeID)
	if isTeam {
		query = query.Where("team_id = ?", subjectID)
	} else {
		query = query.Where("user_id = ?", subjectID)
	}

	var rec models.Instance
	if err := query.First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Instance{}, ErrInstanceNotFound
		}
		return models.Instance{}, fmt.Errorf("lifecycle: load instance: %w", err)
	}
	return rec, nil
}

// existingView checks for a live instance of (challenge, subject). A record
// whose container the engine no longer runs is stale: it is deleted and
// (false, nil) is returned so the caller may proceed.
func (m *Manager) existingView(ctx context.Context, chal models.Challenge, subjectID uint, isTeam bool) (View, bool, error) {
	rec, err := m.record(chal.ID, subjectID, isTeam)
	if errors.Is(err, ErrInstanceNotFound) {
		return View{}, false, nil
	}
	if err != nil {
		return View{}, false, err
	}

	if err := m.ensure(ctx); err != nil {
		return View{}, false, err
	}
	running, err := m.eng.IsRunning(ctx, rec.ID)
	if err != nil {
		return View{}, false, engineError(err)
	}
	if running {
		view := m.viewOf(chal, rec)
		view.Status = StatusAlreadyRunning
		return view, true, nil
	}

	if err := m.db.Delete(&models.Instance{}, "id = ?", rec.ID).Error; err != nil {
		return View{}, false, fmt.Errorf("lifecycle: delete stale instance: %w", err)
	}
	return View{}, false, nil
}

// viewOf builds the collaborator-facing view without a status.
func (m *Manager) viewOf(chal models.Challenge, rec models.Instance) View {
	return View{
		InstanceID:  rec.ID,
		Hostname:    m.Settings().HostLabel,
		Port:        rec.Port,
		ConnectType: chal.ConnectType,
		SSHUsername: chal.SSHUsername,
		SSHPassword: chal.SSHPassword,
		Expires:     rec.ExpiresAt,
	}
}

// splitCommand tokenizes the template's command string the way a shell
// would. An empty command means the image default.
func splitCommand(command string) ([]string, error) {
	if command == "" {
		return nil, nil
	}
	parts, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: challenge command: %w", err)
	}
	return parts, nil
}

// engineError wraps an opaque engine failure for the collaborator boundary.
func engineError(err error) error {
	return fmt.Errorf("engine error: %w", err)
}
