package webapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"signage-agent-go/internal/domain/command"
	"signage-agent-go/internal/domain/identity"
	"signage-agent-go/internal/domain/session"
	sessionmodel "signage-agent-go/internal/domain/session/model"
	"signage-agent-go/internal/domain/session/store"
	errs "signage-agent-go/internal/platform/errors"
	httptransport "signage-agent-go/internal/transport/http"
)

// Options wires the diagnostics service to the running agent.
type Options struct {
	Session    *session.Manager
	Dispatcher *command.Dispatcher
	Registry   *command.Registry
	Store      store.Store
	PushStatus func() string
	Logger     httptransport.Logger
}

// Service serves the local diagnostics API. It exposes read-only state plus
// the login, logout and screen toggles the local renderer UI needs. It is
// meant to listen on loopback only.
type Service struct {
	session    *session.Manager
	dispatcher *command.Dispatcher
	registry   *command.Registry
	store      store.Store
	pushStatus func() string
	logger     httptransport.Logger
	startedAt  time.Time
}

// NewService validates the options and builds the diagnostics service.
func NewService(opts Options) (*Service, error) {
	const op = "webapi.NewService"
	if opts.Session == nil {
		return nil, errs.New(errs.KindTransport, op, "session manager required")
	}
	if opts.Registry == nil {
		return nil, errs.New(errs.KindTransport, op, "command registry required")
	}
	if opts.Logger == nil {
		return nil, errs.New(errs.KindTransport, op, "logger required")
	}

	pushStatus := opts.PushStatus
	if pushStatus == nil {
		pushStatus = func() string { return "disconnected" }
	}

	return &Service{
		session:    opts.Session,
		dispatcher: opts.Dispatcher,
		registry:   opts.Registry,
		store:      opts.Store,
		pushStatus: pushStatus,
		logger:     opts.Logger,
		startedAt:  time.Now(),
	}, nil
}

// Register mounts the diagnostics routes on the API group.
func (s *Service) Register(_ context.Context, api *gin.RouterGroup) {
	api.GET("/status", s.handleStatus)
	api.GET("/session", s.handleSession)
	api.GET("/system", s.handleSystem)
	api.GET("/commands/kinds", s.handleCommandKinds)
	api.GET("/store/stats", s.handleStoreStats)

	api.POST("/session/login", s.handleLogin)
	api.POST("/session/logout", s.handleLogout)
	api.POST("/screen", s.handleScreen)
}

func (s *Service) handleStatus(c *gin.Context) {
	inFlight := 0
	if s.dispatcher != nil {
		inFlight = s.dispatcher.InFlight()
	}

	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"state":          s.session.State(),
		"push_channel":   s.pushStatus(),
		"screen_active":  s.session.ScreenActive(),
		"in_flight":      inFlight,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}, "")
}

func (s *Service) handleSession(c *gin.Context) {
	snapshot := s.session.Snapshot()

	data := gin.H{
		"device_id":        snapshot.DeviceID,
		"is_authenticated": snapshot.IsAuthenticated,
		"screen_name":      snapshot.Credentials.ScreenName,
	}
	if snapshot.AuthCode != nil {
		data["pairing_code"] = snapshot.AuthCode.Code
		data["pairing_expires_at"] = snapshot.AuthCode.ExpiresAt
	}
	httptransport.RespondSuccess(c, http.StatusOK, data, "")
}

func (s *Service) handleSystem(c *gin.Context) {
	httptransport.RespondSuccess(c, http.StatusOK, identity.Info(), "")
}

func (s *Service) handleCommandKinds(c *gin.Context) {
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"kinds": s.registry.Kinds(),
	}, "")
}

func (s *Service) handleStoreStats(c *gin.Context) {
	if s.store == nil {
		httptransport.RespondError(c, http.StatusNotFound, "store stats unavailable", nil)
		return
	}
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to read store stats", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, stats, "")
}

type loginPayload struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	ScreenName string `json:"screen_name" binding:"required"`
}

func (s *Service) handleLogin(c *gin.Context) {
	var payload loginPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "username, password and screen_name required", nil)
		return
	}

	if err := s.session.Login(c.Request.Context(), payload.Username, payload.Password, payload.ScreenName); err != nil {
		s.logger.Warn("login via diagnostics api failed: %v", err)
		status := http.StatusBadGateway
		if errs.IsKind(err, errs.KindSession) {
			status = http.StatusUnauthorized
		}
		httptransport.RespondError(c, status, "login failed", nil)
		return
	}

	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"state": sessionmodel.StateAuthenticated,
	}, "logged in")
}

func (s *Service) handleLogout(c *gin.Context) {
	if err := s.session.Logout(c.Request.Context()); err != nil {
		s.logger.Error("logout via diagnostics api failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "logout failed", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"state": s.session.State(),
	}, "logged out")
}

type screenPayload struct {
	Active *bool `json:"active" binding:"required"`
}

func (s *Service) handleScreen(c *gin.Context) {
	var payload screenPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Active == nil {
		httptransport.RespondError(c, http.StatusBadRequest, "active flag required", nil)
		return
	}

	s.session.SetScreenActive(*payload.Active)
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"screen_active": *payload.Active,
	}, "")
}
