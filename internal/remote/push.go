package remote

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	commandmodel "signage-agent-go/internal/domain/command/model"
	errs "signage-agent-go/internal/platform/errors"
)

const (
	pushDialTimeout  = 10 * time.Second
	pushPingInterval = 20 * time.Second
	pushPongWait     = 45 * time.Second
	pushWriteWait    = 5 * time.Second

	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
)

// pushEnvelope is the wire frame the backend sends on the push channel.
type pushEnvelope struct {
	Type    string               `json:"type"`
	Command commandmodel.Command `json:"command,omitempty"`
}

// SubscriptionOptions configures the push channel.
type SubscriptionOptions struct {
	URL      string
	DeviceID string
	Token    *DeviceToken
	Logger   Logger

	// OnCommand receives every command frame the backend pushes.
	OnCommand func(commandmodel.Command)
	// OnStatusChange observes connection health transitions.
	OnStatusChange func(commandmodel.ConnectionStatus)
}

// Subscription maintains a websocket to the backend and delivers pushed
// commands. It reconnects with backoff until stopped; the polling channel
// covers the gaps.
type Subscription struct {
	opts   SubscriptionOptions
	logger Logger

	status   atomic.Value // commandmodel.ConnectionStatus
	mu       sync.Mutex
	conn     *websocket.Conn
	started  atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewSubscription validates the options and builds a push subscription.
func NewSubscription(opts SubscriptionOptions) (*Subscription, error) {
	if opts.URL == "" {
		return nil, errs.New(errs.KindConfig, "remote.NewSubscription", "websocket url required")
	}
	if opts.DeviceID == "" {
		return nil, errs.New(errs.KindConfig, "remote.NewSubscription", "device id required")
	}
	s := &Subscription{
		opts:     opts,
		logger:   opts.Logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.status.Store(commandmodel.ConnDisconnected)
	return s, nil
}

// Status returns the current connection health.
func (s *Subscription) Status() commandmodel.ConnectionStatus {
	return s.status.Load().(commandmodel.ConnectionStatus)
}

func (s *Subscription) setStatus(status commandmodel.ConnectionStatus) {
	prev := s.status.Swap(status)
	if prev == status {
		return
	}
	if s.logger != nil {
		s.logger.Info("push channel %s", status)
	}
	if s.opts.OnStatusChange != nil {
		s.opts.OnStatusChange(status)
	}
}

// Start launches the connect loop. It returns immediately.
func (s *Subscription) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.run(ctx)
}

// Disconnect drops the current connection without stopping the run loop,
// which will dial again with backoff. Used when the session changes and the
// handshake needs to be redone.
func (s *Subscription) Disconnect() {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
}

// Stop tears the channel down and waits for the run loop to exit.
func (s *Subscription) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
	})
	if s.started.Load() {
		<-s.done
	}
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	defer s.setStatus(commandmodel.ConnDisconnected)

	backoff := reconnectMin
	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		s.setStatus(commandmodel.ConnConnecting)
		conn, err := s.dial(ctx)
		if err != nil {
			s.setStatus(commandmodel.ConnDisconnected)
			if s.logger != nil {
				s.logger.Warn("push dial failed, retrying in %s: %v", backoff, err)
			}
			select {
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}

		backoff = reconnectMin
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.setStatus(commandmodel.ConnConnected)

		s.readLoop(conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		s.setStatus(commandmodel.ConnDisconnected)
	}
}

func (s *Subscription) dial(ctx context.Context) (*websocket.Conn, error) {
	const op = "push.dial"

	header := http.Header{}
	header.Set(headerDeviceID, s.opts.DeviceID)
	if s.opts.Token != nil {
		token, err := s.opts.Token.Generate(s.opts.DeviceID)
		if err != nil {
			return nil, err
		}
		header.Set("Authorization", "Bearer "+token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, pushDialTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: pushDialTimeout}
	conn, resp, err := dialer.DialContext(dialCtx, s.opts.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindGateway, op, "websocket dial", err)
	}
	return conn, nil
}

// readLoop pumps frames until the connection dies. A ping ticker keeps the
// connection alive; a missed pong forces a reconnect through the read
// deadline.
func (s *Subscription) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pushPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pushPongWait))
	})

	pingStop := make(chan struct{})
	defer close(pingStop)
	go func() {
		ticker := time.NewTicker(pushPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingStop:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(pushWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			select {
			case <-s.stopChan:
			default:
				if s.logger != nil {
					s.logger.Warn("push channel read failed: %v", err)
				}
			}
			return
		}
		s.handleFrame(payload)
	}
}

func (s *Subscription) handleFrame(payload []byte) {
	var envelope pushEnvelope
	if err := sonic.Unmarshal(payload, &envelope); err != nil {
		if s.logger != nil {
			s.logger.Warn("push channel dropped malformed frame: %v", err)
		}
		return
	}

	switch envelope.Type {
	case "command":
		if envelope.Command.ID == "" {
			if s.logger != nil {
				s.logger.Warn("push channel dropped command frame without id")
			}
			return
		}
		if s.opts.OnCommand != nil {
			s.opts.OnCommand(envelope.Command)
		}
	case "ping", "":
		// Keepalive frames from the backend need no response here.
	default:
		if s.logger != nil {
			s.logger.Debug("push channel ignored frame type %q", envelope.Type)
		}
	}
}
