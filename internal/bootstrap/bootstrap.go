package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"signage-agent-go/internal/domain/command"
	commandmodel "signage-agent-go/internal/domain/command/model"
	"signage-agent-go/internal/domain/eventbus"
	"signage-agent-go/internal/domain/identity"
	"signage-agent-go/internal/domain/session"
	sessionmodel "signage-agent-go/internal/domain/session/model"
	sessionstore "signage-agent-go/internal/domain/session/store"
	platformconfig "signage-agent-go/internal/platform/config"
	platformerrors "signage-agent-go/internal/platform/errors"
	platformlogging "signage-agent-go/internal/platform/logging"
	platformstorage "signage-agent-go/internal/platform/storage"
	"signage-agent-go/internal/remote"
	httptransport "signage-agent-go/internal/transport/http"
	httpwebapi "signage-agent-go/internal/transport/http/webapi"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config     *platformconfig.Config
	configPath string
	logger     *platformlogging.Logger

	db       *gorm.DB
	deviceID string
	store    sessionstore.Store

	gateway    *remote.Gateway
	push       *remote.Subscription
	session    *session.Manager
	registry   *command.Registry
	dispatcher *command.Dispatcher
}

// Run drives the whole agent lifecycle: configuration, dependency wiring,
// service startup and graceful shutdown.
func Run(ctx context.Context) error {
	state := &appState{}

	if err := executeInitSteps(ctx, InitGraph(), state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger
	if config == nil || logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
		)
	}
	defer logger.Close()
	defer eventbus.Shutdown()

	logBootstrapGraph(InitGraph(), logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	logger.Info("signage agent running as device %s", state.deviceID)

	return waitForShutdown(signalCtx, cancel, state, group)
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	logger.Info("initialisation order:")
	for _, step := range steps {
		logger.Info("  %s", step.Title)
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph lists the initialisation steps in dependency order.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init",
			Title:     "Initialise logging",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Initialise database",
			DependsOn: []string{"config:load", "logging:init"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "identity:resolve",
			Title:     "Resolve device identity",
			DependsOn: []string{"config:load", "logging:init"},
			Kind:      platformerrors.KindIdentity,
			Execute:   resolveIdentityStep,
		},
		{
			ID:        "session:init-store",
			Title:     "Initialise session store",
			DependsOn: []string{"storage:init-database"},
			Kind:      platformerrors.KindStorage,
			Execute:   initSessionStoreStep,
		},
		{
			ID:        "remote:init-gateway",
			Title:     "Initialise backend gateway",
			DependsOn: []string{"identity:resolve"},
			Kind:      platformerrors.KindGateway,
			Execute:   initGatewayStep,
		},
		{
			ID:        "session:init-manager",
			Title:     "Initialise session manager",
			DependsOn: []string{"session:init-store", "remote:init-gateway"},
			Kind:      platformerrors.KindSession,
			Execute:   initSessionManagerStep,
		},
		{
			ID:        "command:init-dispatcher",
			Title:     "Initialise command dispatcher",
			DependsOn: []string{"remote:init-gateway", "session:init-manager"},
			Kind:      platformerrors.KindCommand,
			Execute:   initDispatcherStep,
		},
		{
			ID:        "remote:init-push",
			Title:     "Initialise push channel",
			DependsOn: []string{"command:init-dispatcher"},
			Kind:      platformerrors.KindTransport,
			Execute:   initPushStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := platformconfig.NewLoader().Load()
	if err != nil {
		return err
	}
	state.config = result.Config
	state.configPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Format:   state.config.Log.Format,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init", "failed to initialise logger", err)
	}
	state.logger = logger

	origin := state.configPath
	if origin == "" {
		origin = "defaults"
	}
	logger.Info("logging ready [%s], config from %s", state.config.Log.Level, origin)
	return nil
}

func initDatabaseStep(_ context.Context, state *appState) error {
	if state.config.Store.Driver != "" && state.config.Store.Driver != sessionstore.DriverSQLite {
		return nil
	}

	dsn := state.config.Store.SQLite.DSN
	if dsn == "" {
		dsn = "data/signage-agent.db"
	}
	db, err := platformstorage.Open(dsn)
	if err != nil {
		return err
	}
	state.db = db
	return nil
}

func resolveIdentityStep(_ context.Context, state *appState) error {
	provider := identity.NewProvider(state.config.Identity.DataDir)
	deviceID, err := provider.DeviceID()
	if err != nil {
		return err
	}
	state.deviceID = deviceID
	return nil
}

func initSessionStoreStep(_ context.Context, state *appState) error {
	cfg := sessionstore.Config{
		Driver: state.config.Store.Driver,
		SQLite: &sessionstore.SQLiteConfig{
			DSN: state.config.Store.SQLite.DSN,
		},
		Redis: &sessionstore.RedisConfig{
			Addr:     state.config.Store.Redis.Addr,
			Username: state.config.Store.Redis.Username,
			Password: state.config.Store.Redis.Password,
			DB:       state.config.Store.Redis.DB,
			Prefix:   state.config.Store.Redis.Prefix,
		},
	}

	store, err := sessionstore.New(cfg, sessionstore.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "session:init-store", "failed to create session store", err)
	}
	state.store = store
	return nil
}

func initGatewayStep(_ context.Context, state *appState) error {
	client, err := remote.NewClient(remote.ClientOptions{
		BaseURL:  state.config.Backend.BaseURL,
		APIKey:   state.config.Backend.APIKey,
		DeviceID: state.deviceID,
		Timeout:  state.config.Backend.Timeout,
		Logger:   state.logger,
	})
	if err != nil {
		return err
	}
	state.gateway = remote.NewGateway(client, state.logger)
	return nil
}

// connectivityProbe builds a cheap reachability check against the backend
// host. Heartbeats still go out while it reports false, marked offline, so
// the backend sees the device's own view of the link.
func connectivityProbe(baseURL string) func() bool {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return nil
	}
	host := parsed.Host
	if parsed.Port() == "" {
		port := "80"
		if parsed.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(parsed.Hostname(), port)
	}
	return func() bool {
		conn, err := net.DialTimeout("tcp", host, 2*time.Second)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}

func initSessionManagerStep(_ context.Context, state *appState) error {
	manager, err := session.NewManager(session.Options{
		DeviceID:            state.deviceID,
		Store:               state.store,
		Gateway:             state.gateway,
		Logger:              state.logger,
		HeartbeatInterval:   state.config.Session.HeartbeatInterval,
		PairingPollInterval: state.config.Session.PairingPollInterval,
		Connectivity:        connectivityProbe(state.config.Backend.BaseURL),
		OnLogout: func() {
			// Quiesce the command channels before the backend learns the
			// device is going offline. The dispatcher resumes when the
			// device authenticates again.
			if state.dispatcher != nil {
				state.dispatcher.Pause()
			}
			if state.push != nil {
				state.push.Disconnect()
			}
		},
	})
	if err != nil {
		return err
	}
	state.session = manager
	return nil
}

func initDispatcherStep(_ context.Context, state *appState) error {
	registry := command.NewRegistry()
	if err := registerHandlers(registry, state); err != nil {
		return err
	}
	state.registry = registry

	dispatcher, err := command.NewDispatcher(command.DispatcherOptions{
		Gateway:      state.gateway,
		Registry:     registry,
		Logger:       state.logger,
		PollInterval: state.config.Commands.PollInterval,
	})
	if err != nil {
		return err
	}
	state.dispatcher = dispatcher
	return nil
}

func initPushStep(ctx context.Context, state *appState) error {
	wsURL := state.config.Backend.WebsocketURL
	if wsURL == "" {
		state.logger.Warn("no websocket url configured, commands arrive by polling only")
		return nil
	}

	sub, err := remote.NewSubscription(remote.SubscriptionOptions{
		URL:      wsURL,
		DeviceID: state.deviceID,
		Token:    remote.NewDeviceToken(state.config.Backend.APIKey),
		Logger:   state.logger,
		OnCommand: func(cmd commandmodel.Command) {
			state.dispatcher.Submit(ctx, cmd, command.SourcePush)
		},
		OnStatusChange: func(status commandmodel.ConnectionStatus) {
			eventbus.PublishAsync(eventbus.EventPushStatus, eventbus.PushStatusEventData{
				Status: string(status),
			})
		},
	})
	if err != nil {
		return err
	}
	state.push = sub
	return nil
}

func startServices(state *appState, group *errgroup.Group, groupCtx context.Context) error {
	initCtx, cancel := context.WithTimeout(groupCtx, 30*time.Second)
	defer cancel()
	if err := state.session.Initialize(initCtx); err != nil {
		return err
	}

	// Commands only flow for an authenticated device; the dispatcher wakes
	// up the moment the session authenticates.
	if err := eventbus.SubscribeAsync(eventbus.EventSessionAuthenticated, func(eventbus.SessionEventData) {
		state.dispatcher.Resume()
	}); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "startServices", "subscribe authenticated event", err)
	}
	if state.session.State() != sessionmodel.StateAuthenticated {
		state.dispatcher.Pause()
	}

	// The push subscription comes up before the first poll pass so a command
	// arriving in the gap between them is seen by at least one channel.
	if state.push != nil {
		state.push.Start(groupCtx)
	}
	state.dispatcher.Start(groupCtx)

	if state.config.Web.Enabled {
		if err := startHTTPServer(state, group, groupCtx); err != nil {
			return err
		}
	}

	return nil
}

func startHTTPServer(state *appState, group *errgroup.Group, groupCtx context.Context) error {
	router, err := httptransport.Build(httptransport.Options{
		LogLevel: state.config.Log.Level,
		Logger:   state.logger,
	})
	if err != nil {
		return err
	}

	pushStatus := func() string { return "disconnected" }
	if state.push != nil {
		pushStatus = func() string { return string(state.push.Status()) }
	}

	webapiService, err := httpwebapi.NewService(httpwebapi.Options{
		Session:    state.session,
		Dispatcher: state.dispatcher,
		Registry:   state.registry,
		Store:      state.store,
		PushStatus: pushStatus,
		Logger:     state.logger,
	})
	if err != nil {
		return err
	}
	webapiService.Register(groupCtx, router.API)

	addr := state.config.Web.IP + ":" + strconv.Itoa(state.config.Web.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router.Engine,
	}

	group.Go(func() error {
		state.logger.Info("diagnostics api listening on http://%s/api", addr)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				state.logger.Error("diagnostics api shutdown failed: %v", err)
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			state.logger.Error("diagnostics api failed: %v", err)
			return err
		}
		return nil
	})
	return nil
}

// waitForShutdown blocks until a signal arrives, then winds the services
// down in reverse dependency order: push channel first, dispatcher next, the
// session loops last so cached credentials survive the restart.
func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	state *appState,
	group *errgroup.Group,
) error {
	<-ctx.Done()
	state.logger.Info("shutdown signal received, stopping services")

	if state.push != nil {
		state.push.Stop()
	}
	state.dispatcher.Stop()
	state.session.Stop()

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- group.Wait()
	}()

	var result error
	select {
	case err := <-done:
		if err != nil {
			state.logger.Error("service shutdown reported error: %v", err)
			result = err
		}
	case <-time.After(15 * time.Second):
		result = errors.New("service shutdown timed out")
		state.logger.Error("service shutdown timed out, exiting anyway")
	}

	if closeErr := state.store.Close(context.Background()); closeErr != nil {
		state.logger.Warn("session store close failed: %v", closeErr)
	}

	if result == nil {
		state.logger.Info("all services stopped")
	}
	return result
}
