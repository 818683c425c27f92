package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"signage-agent-go/internal/domain/eventbus"
	"signage-agent-go/internal/domain/session/model"
	"signage-agent-go/internal/domain/session/store"
	errs "signage-agent-go/internal/platform/errors"
)

const (
	defaultHeartbeatInterval   = 30 * time.Second
	defaultPairingPollInterval = 3 * time.Second

	backendCallTimeout = 10 * time.Second
)

// Gateway is the slice of the backend the session manager needs.
type Gateway interface {
	Login(ctx context.Context, username, password, screenName string) (model.Credentials, error)
	PushStatus(ctx context.Context, report model.StatusReport) error
	GeneratePairingCode(ctx context.Context) (model.PairingCode, error)
	PollPairingStatus(ctx context.Context, code string) (model.PairingStatus, model.Credentials, error)
	ClearDeviceAuth(ctx context.Context) error
}

// Options configures a Manager.
type Options struct {
	DeviceID string
	Store    store.Store
	Gateway  Gateway
	Logger   model.Logger

	HeartbeatInterval   time.Duration
	PairingPollInterval time.Duration

	// Connectivity reports whether the backend looks reachable. Background
	// loops skip their backend calls while it returns false. Nil means
	// always reachable.
	Connectivity func() bool

	// OnLogout runs during logout after the background loops stop and
	// before the final offline status push. The command listener hooks in
	// here so no command can land on a session that is going away.
	OnLogout func()
}

// loop tracks one background goroutine so it can be stopped exactly once
// and waited on.
type loop struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newLoop() *loop {
	return &loop{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (l *loop) halt() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		close(l.stop)
	})
	<-l.done
}

// Manager owns the device session. It is the only writer of the
// authentication state; every other component works from snapshots or
// events.
type Manager struct {
	store   store.Store
	gateway Gateway
	logger  model.Logger

	heartbeatInterval   time.Duration
	pairingPollInterval time.Duration
	connectivity        func() bool
	onLogout            func()

	mu        sync.Mutex
	state     model.State
	session   model.DeviceSession
	heartbeat *loop
	pairing   *loop

	screenActive atomic.Bool
}

// NewManager validates the options and builds a session manager in the
// uninitialized state.
func NewManager(opts Options) (*Manager, error) {
	const op = "session.NewManager"
	if opts.DeviceID == "" {
		return nil, errs.New(errs.KindSession, op, "device id required")
	}
	if opts.Store == nil {
		return nil, errs.New(errs.KindSession, op, "store required")
	}
	if opts.Gateway == nil {
		return nil, errs.New(errs.KindSession, op, "gateway required")
	}

	heartbeat := opts.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	pairing := opts.PairingPollInterval
	if pairing <= 0 {
		pairing = defaultPairingPollInterval
	}
	connectivity := opts.Connectivity
	if connectivity == nil {
		connectivity = func() bool { return true }
	}

	return &Manager{
		store:               opts.Store,
		gateway:             opts.Gateway,
		logger:              opts.Logger,
		heartbeatInterval:   heartbeat,
		pairingPollInterval: pairing,
		connectivity:        connectivity,
		onLogout:            opts.OnLogout,
		state:               model.StateUninitialized,
		session:             model.DeviceSession{DeviceID: opts.DeviceID},
	}, nil
}

// Initialize restores the session from the store. A logout sentinel left by
// a previous run wins over any cached credentials: the credentials are
// wiped before they are ever read, then wiped again after the sentinel is
// gone in case the first clear raced a crash.
func (m *Manager) Initialize(ctx context.Context) error {
	const op = "session.Initialize"

	m.mu.Lock()
	if m.state != model.StateUninitialized {
		m.mu.Unlock()
		return errs.New(errs.KindSession, op, "already initialized")
	}
	m.state = model.StateInitializing
	m.mu.Unlock()

	hasSentinel, err := m.store.HasLogoutSentinel(ctx)
	if err != nil {
		return errs.Wrap(errs.KindStorage, op, "read logout sentinel", err)
	}

	if hasSentinel {
		if m.logger != nil {
			m.logger.Info("logout sentinel found, discarding cached credentials")
		}
		if err := m.store.ClearCredentials(ctx); err != nil {
			return errs.Wrap(errs.KindStorage, op, "clear credentials", err)
		}
		if err := m.store.ClearLogoutSentinel(ctx); err != nil {
			return errs.Wrap(errs.KindStorage, op, "clear logout sentinel", err)
		}
		if err := m.store.ClearCredentials(ctx); err != nil {
			return errs.Wrap(errs.KindStorage, op, "clear credentials", err)
		}
		m.becomeUnauthenticated()
		return nil
	}

	creds, ok, err := m.store.LoadCredentials(ctx)
	if err != nil {
		return errs.Wrap(errs.KindStorage, op, "load credentials", err)
	}
	if !ok {
		m.becomeUnauthenticated()
		return nil
	}

	if m.logger != nil {
		m.logger.Info("restored session for screen %q", creds.ScreenName)
	}
	m.becomeAuthenticated(creds)
	return nil
}

// Login exchanges operator credentials for a device session, binding this
// device to the named screen. It works from any non-terminal state and
// replaces an outstanding pairing code.
func (m *Manager) Login(ctx context.Context, username, password, screenName string) error {
	const op = "session.Login"

	m.mu.Lock()
	if m.state == model.StateLoggingOut {
		m.mu.Unlock()
		return errs.New(errs.KindSession, op, "logout in progress")
	}
	if m.state == model.StateUninitialized {
		m.mu.Unlock()
		return errs.New(errs.KindSession, op, "not initialized")
	}
	pairing := m.pairing
	m.pairing = nil
	m.mu.Unlock()

	pairing.halt()

	creds, err := m.gateway.Login(ctx, username, password, screenName)
	if err != nil {
		m.mu.Lock()
		if !m.session.IsAuthenticated && m.pairing == nil && m.state != model.StateLoggingOut {
			m.startPairingLocked()
		}
		m.mu.Unlock()
		return err
	}

	if err := m.store.SaveCredentials(ctx, creds); err != nil {
		return errs.Wrap(errs.KindStorage, op, "persist credentials", err)
	}

	m.becomeAuthenticated(creds)
	return nil
}

// Logout tears the session down in a fixed order: background loops first,
// then the command listener, the final offline push, local state, the
// sentinel, and last the backend's own record. It is idempotent; concurrent
// calls beyond the first are no-ops.
func (m *Manager) Logout(ctx context.Context) (err error) {
	const op = "session.Logout"

	m.mu.Lock()
	if m.state == model.StateLoggingOut || !m.session.IsAuthenticated {
		m.mu.Unlock()
		return nil
	}
	m.state = model.StateLoggingOut
	creds := m.session.Credentials
	heartbeat := m.heartbeat
	pairing := m.pairing
	m.heartbeat = nil
	m.pairing = nil
	m.mu.Unlock()

	// Whatever happens below, credentials must not survive the attempt.
	defer func() {
		if r := recover(); r != nil {
			if m.logger != nil {
				m.logger.Error("logout panicked, forcing cleanup: %v", r)
			}
			cleanupCtx, cancel := context.WithTimeout(context.Background(), backendCallTimeout)
			defer cancel()
			m.store.ClearCredentials(cleanupCtx)
			m.store.SetLogoutSentinel(cleanupCtx)
			m.finishLogout()
			err = errs.New(errs.KindSession, op, "logout aborted by panic")
		}
	}()

	heartbeat.halt()
	pairing.halt()

	if m.onLogout != nil {
		m.onLogout()
	}

	offline := model.StatusReport{Credentials: creds, Online: false, Active: false}
	if pushErr := m.gateway.PushStatus(ctx, offline); pushErr != nil {
		if m.logger != nil {
			m.logger.Warn("final offline push failed: %v", pushErr)
		}
	}

	// The in-memory session dies before the durable clears so no reader can
	// observe an authenticated snapshot while the storage and backend calls
	// run.
	m.mu.Lock()
	m.session = model.DeviceSession{DeviceID: m.session.DeviceID}
	m.mu.Unlock()

	var storageErr error
	if clearErr := m.store.ClearCredentials(ctx); clearErr != nil {
		storageErr = errs.Wrap(errs.KindStorage, op, "clear credentials", clearErr)
	}
	if sentinelErr := m.store.SetLogoutSentinel(ctx); sentinelErr != nil && storageErr == nil {
		storageErr = errs.Wrap(errs.KindStorage, op, "set logout sentinel", sentinelErr)
	}

	if clearErr := m.gateway.ClearDeviceAuth(ctx); clearErr != nil {
		if m.logger != nil {
			m.logger.Warn("backend auth clear failed: %v", clearErr)
		}
	}

	m.finishLogout()
	return storageErr
}

func (m *Manager) finishLogout() {
	m.mu.Lock()
	deviceID := m.session.DeviceID
	m.session = model.DeviceSession{DeviceID: deviceID}
	m.state = model.StateUnauthenticated
	restartPairing := m.pairing == nil
	if restartPairing {
		m.startPairingLocked()
	}
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Info("session logged out")
	}
	eventbus.PublishAsync(eventbus.EventSessionLoggedOut, eventbus.SessionEventData{
		DeviceID: deviceID,
	})
}

// SetScreenActive records whether content is on screen. The heartbeat runs
// only while the device is authenticated with content on screen, so a flip
// here starts the timer or halts it before the next tick.
func (m *Manager) SetScreenActive(active bool) {
	prev := m.screenActive.Swap(active)
	if prev == active {
		return
	}

	if active {
		m.mu.Lock()
		if m.session.IsAuthenticated && m.state == model.StateAuthenticated {
			m.startHeartbeatLocked()
		}
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	heartbeat := m.heartbeat
	m.heartbeat = nil
	m.mu.Unlock()
	heartbeat.halt()
}

// SyncNow pushes a heartbeat outside the regular schedule. No-op while
// unauthenticated.
func (m *Manager) SyncNow() {
	m.beat()
}

// ScreenActive reports the current screen state.
func (m *Manager) ScreenActive() bool {
	return m.screenActive.Load()
}

// State returns the current lifecycle state.
func (m *Manager) State() model.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a read-only copy of the session. The credentials triple
// never leaves the manager; callers get the screen name at most.
func (m *Manager) Snapshot() model.DeviceSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.session
	snapshot.Credentials = model.Credentials{ScreenName: m.session.Credentials.ScreenName}
	if m.session.AuthCode != nil {
		code := *m.session.AuthCode
		snapshot.AuthCode = &code
	}
	return snapshot
}

// Stop halts the background loops without logging out. Used at shutdown so
// the cached credentials survive a restart.
func (m *Manager) Stop() {
	m.mu.Lock()
	heartbeat := m.heartbeat
	pairing := m.pairing
	m.heartbeat = nil
	m.pairing = nil
	m.mu.Unlock()

	heartbeat.halt()
	pairing.halt()
}

func (m *Manager) becomeAuthenticated(creds model.Credentials) {
	m.mu.Lock()
	pairing := m.pairing
	m.pairing = nil
	m.session.Credentials = creds
	m.session.IsAuthenticated = true
	m.session.AuthCode = nil
	m.state = model.StateAuthenticated
	deviceID := m.session.DeviceID
	if m.screenActive.Load() {
		m.startHeartbeatLocked()
	}
	m.mu.Unlock()

	pairing.halt()

	eventbus.PublishAsync(eventbus.EventSessionAuthenticated, eventbus.SessionEventData{
		DeviceID:   deviceID,
		ScreenName: creds.ScreenName,
	})
}

func (m *Manager) becomeUnauthenticated() {
	m.mu.Lock()
	m.session.Credentials = model.Credentials{}
	m.session.IsAuthenticated = false
	m.state = model.StateUnauthenticated
	m.startPairingLocked()
	m.mu.Unlock()
}

// startHeartbeatLocked assumes m.mu is held.
func (m *Manager) startHeartbeatLocked() {
	if m.heartbeat != nil {
		return
	}
	l := newLoop()
	m.heartbeat = l
	go m.heartbeatLoop(l)
}

func (m *Manager) heartbeatLoop(l *loop) {
	defer close(l.done)

	// First beat goes out right away so the backend sees the device the
	// moment the screen goes live on an authenticated session.
	m.beat()

	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			m.beat()
		}
	}
}

func (m *Manager) beat() {
	m.mu.Lock()
	if !m.session.IsAuthenticated || m.state != model.StateAuthenticated {
		m.mu.Unlock()
		return
	}
	creds := m.session.Credentials
	m.mu.Unlock()

	report := model.StatusReport{
		Credentials: creds,
		Online:      m.connectivity(),
		Active:      m.screenActive.Load(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), backendCallTimeout)
	defer cancel()
	if err := m.gateway.PushStatus(ctx, report); err != nil {
		if m.logger != nil {
			m.logger.Warn("heartbeat failed: %v", err)
		}
	}
}

// startPairingLocked assumes m.mu is held.
func (m *Manager) startPairingLocked() {
	if m.pairing != nil {
		return
	}
	l := newLoop()
	m.pairing = l
	go m.pairingLoop(l)
}

// pairingLoop keeps a live pairing code in front of the operator until a
// companion client claims it. Expiry is judged by the local clock first; a
// stale backend answer never keeps a dead code alive.
func (m *Manager) pairingLoop(l *loop) {
	defer close(l.done)

	m.refreshPairingCode()

	ticker := time.NewTicker(m.pairingPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			if !m.connectivity() {
				continue
			}

			m.mu.Lock()
			code := m.session.AuthCode
			m.mu.Unlock()

			if code == nil {
				m.refreshPairingCode()
				continue
			}
			if code.Expired(time.Now()) {
				if m.logger != nil {
					m.logger.Info("pairing code %s expired locally, regenerating", code.Code)
				}
				m.refreshPairingCode()
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), backendCallTimeout)
			status, creds, err := m.gateway.PollPairingStatus(ctx, code.Code)
			cancel()
			if err != nil {
				if m.logger != nil {
					m.logger.Debug("pairing poll failed: %v", err)
				}
				continue
			}

			switch status {
			case model.PairingAuthenticated:
				if err := m.completePairing(creds); err != nil {
					if m.logger != nil {
						m.logger.Error("pairing completion failed: %v", err)
					}
					continue
				}
				return
			case model.PairingExpired:
				m.refreshPairingCode()
			case model.PairingPending:
				// Keep waiting.
			}
		}
	}
}

func (m *Manager) refreshPairingCode() {
	if !m.connectivity() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), backendCallTimeout)
	defer cancel()

	code, err := m.gateway.GeneratePairingCode(ctx)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("pairing code generation failed: %v", err)
		}
		return
	}

	m.mu.Lock()
	if m.session.IsAuthenticated || m.state == model.StateLoggingOut {
		m.mu.Unlock()
		return
	}
	m.session.AuthCode = &code
	deviceID := m.session.DeviceID
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Info("pairing code %s valid until %s", code.Code, code.ExpiresAt.Format(time.RFC3339))
	}
	eventbus.PublishAsync(eventbus.EventSessionPairingCode, eventbus.PairingEventData{
		DeviceID:  deviceID,
		Code:      code.Code,
		ExpiresAt: code.ExpiresAt,
	})
}

// completePairing persists the claimed credentials and flips the session to
// authenticated. Called from the pairing loop, which exits right after.
func (m *Manager) completePairing(creds model.Credentials) error {
	const op = "session.completePairing"

	if !creds.Complete() {
		return errs.New(errs.KindSession, op, "incomplete credentials from pairing")
	}

	ctx, cancel := context.WithTimeout(context.Background(), backendCallTimeout)
	defer cancel()
	if err := m.store.SaveCredentials(ctx, creds); err != nil {
		return errs.Wrap(errs.KindStorage, op, "persist credentials", err)
	}

	m.mu.Lock()
	// The loop calling in is the one registered; drop the handle so
	// becomeAuthenticated does not wait on it and deadlock.
	m.pairing = nil
	m.mu.Unlock()

	m.becomeAuthenticated(creds)
	return nil
}
