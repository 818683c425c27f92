package command

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"signage-agent-go/internal/domain/command/model"
	"signage-agent-go/internal/domain/eventbus"
	errs "signage-agent-go/internal/platform/errors"
)

const defaultPollInterval = 2500 * time.Millisecond

// Delivery sources, recorded on lifecycle events for diagnostics.
const (
	SourcePush = "push"
	SourcePoll = "poll"
)

// Gateway is the slice of the backend the dispatcher needs.
type Gateway interface {
	PollCommands(ctx context.Context) ([]model.Command, error)
	AckCommand(ctx context.Context, commandID string, status model.Status, message string) error
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Gateway      Gateway
	Registry     *Registry
	Logger       model.Logger
	PollInterval time.Duration
}

// Dispatcher executes backend commands exactly once per delivery burst. The
// push channel and the poll loop both feed Submit; an in-flight set keyed by
// command id drops whichever copy arrives second.
type Dispatcher struct {
	gateway      Gateway
	registry     *Registry
	logger       model.Logger
	pollInterval time.Duration

	mu       sync.Mutex
	paused   bool
	inFlight map[string]model.Status

	started  atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	loopDone chan struct{}
}

// NewDispatcher validates the options and builds a dispatcher.
func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	if opts.Gateway == nil {
		return nil, errs.New(errs.KindCommand, "command.NewDispatcher", "gateway required")
	}
	if opts.Registry == nil {
		return nil, errs.New(errs.KindCommand, "command.NewDispatcher", "registry required")
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Dispatcher{
		gateway:      opts.Gateway,
		registry:     opts.Registry,
		logger:       opts.Logger,
		pollInterval: interval,
		inFlight:     make(map[string]model.Status),
		stopChan:     make(chan struct{}),
		loopDone:     make(chan struct{}),
	}, nil
}

// Start runs the poll loop. The first pass happens immediately so a device
// coming online drains its backlog without waiting a full interval.
func (d *Dispatcher) Start(ctx context.Context) {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(d.loopDone)

		d.pollOnce(ctx)

		ticker := time.NewTicker(d.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-d.stopChan:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.pollOnce(ctx)
			}
		}
	}()
}

// Stop halts the poll loop. Handlers already running finish on their own;
// Pause is the draining variant.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopChan)
	})
	if d.started.Load() {
		<-d.loopDone
	}
}

// Pause suspends delivery and waits for running handlers to drain. Used
// during logout so no command lands on a session that is going away.
func (d *Dispatcher) Pause() {
	d.mu.Lock()
	d.paused = true
	d.mu.Unlock()
	d.wg.Wait()
}

// Resume re-enables delivery after a Pause, typically on re-authentication.
func (d *Dispatcher) Resume() {
	d.mu.Lock()
	d.paused = false
	d.mu.Unlock()
}

// InFlight reports how many commands are currently executing.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inFlight)
}

func (d *Dispatcher) pollOnce(ctx context.Context) {
	d.mu.Lock()
	paused := d.paused
	d.mu.Unlock()
	if paused {
		return
	}

	commands, err := d.gateway.PollCommands(ctx)
	if err != nil {
		if d.logger != nil {
			if errs.Retryable(err) {
				d.logger.Debug("command poll failed, retrying next tick: %v", err)
			} else {
				d.logger.Warn("command poll failed: %v", err)
			}
		}
		return
	}
	for _, cmd := range commands {
		d.Submit(ctx, cmd, SourcePoll)
	}
}

// Submit offers a command for execution. Non-pending commands are dropped,
// as are duplicates of a command already in flight. The check and the mark
// share one critical section so the push and poll channels cannot both win.
func (d *Dispatcher) Submit(ctx context.Context, cmd model.Command, source string) {
	if cmd.ID == "" {
		return
	}
	if cmd.Status != model.StatusPending {
		if d.logger != nil {
			d.logger.Debug("dropping %s command %s in status %s", source, cmd.ID, cmd.Status)
		}
		return
	}

	d.mu.Lock()
	if d.paused {
		d.mu.Unlock()
		return
	}
	if _, dup := d.inFlight[cmd.ID]; dup {
		d.mu.Unlock()
		if d.logger != nil {
			d.logger.Debug("dropping duplicate %s delivery of command %s", source, cmd.ID)
		}
		return
	}
	d.inFlight[cmd.ID] = model.StatusPending
	d.mu.Unlock()

	select {
	case <-d.stopChan:
		d.release(cmd.ID)
		return
	default:
	}

	eventbus.PublishAsync(eventbus.EventCommandReceived, eventbus.CommandEventData{
		CommandID: cmd.ID,
		Kind:      cmd.Kind,
		Source:    source,
	})

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.execute(ctx, cmd, source)
	}()
}

func (d *Dispatcher) release(commandID string) {
	d.mu.Lock()
	delete(d.inFlight, commandID)
	d.mu.Unlock()
}

// execute runs one command through its lifecycle. The processing ack is best
// effort; the terminal ack reflects the handler outcome. A panicking handler
// is reported as a failure instead of crashing the agent.
func (d *Dispatcher) execute(ctx context.Context, cmd model.Command, source string) {
	defer d.release(cmd.ID)

	d.ack(ctx, cmd.ID, model.StatusProcessing, "")

	handler, ok := d.registry.Lookup(cmd.Kind)
	if !ok {
		message := fmt.Sprintf("no handler registered for kind %q", cmd.Kind)
		if d.logger != nil {
			d.logger.Warn("command %s failed: %s", cmd.ID, message)
		}
		d.finish(ctx, cmd, source, model.StatusFailed, message)
		return
	}

	err := d.runHandler(ctx, handler, cmd)
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("command %s (%s) failed: %v", cmd.ID, cmd.Kind, err)
		}
		d.finish(ctx, cmd, source, model.StatusFailed, err.Error())
		return
	}

	if d.logger != nil {
		d.logger.Info("command %s (%s) completed via %s", cmd.ID, cmd.Kind, source)
	}
	d.finish(ctx, cmd, source, model.StatusCompleted, "")
}

func (d *Dispatcher) runHandler(ctx context.Context, handler Handler, cmd model.Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.KindCommand, "command.execute", fmt.Sprintf("handler panicked: %v", r))
		}
	}()
	return handler(ctx, cmd)
}

func (d *Dispatcher) finish(ctx context.Context, cmd model.Command, source string, status model.Status, message string) {
	d.ack(ctx, cmd.ID, status, message)

	topic := eventbus.EventCommandCompleted
	if status == model.StatusFailed {
		topic = eventbus.EventCommandFailed
	}
	eventbus.PublishAsync(topic, eventbus.CommandEventData{
		CommandID: cmd.ID,
		Kind:      cmd.Kind,
		Source:    source,
		Message:   message,
	})
}

// ack reports a status transition, refusing to move backwards. The backend
// applies the same rule, so a lost processing ack followed by a completed
// ack is still correct.
func (d *Dispatcher) ack(ctx context.Context, commandID string, status model.Status, message string) {
	d.mu.Lock()
	last, tracked := d.inFlight[commandID]
	if tracked && !last.Before(status) {
		d.mu.Unlock()
		return
	}
	if tracked {
		d.inFlight[commandID] = status
	}
	d.mu.Unlock()

	if err := d.gateway.AckCommand(ctx, commandID, status, message); err != nil {
		if d.logger != nil {
			d.logger.Warn("ack %s for command %s failed: %v", status, commandID, err)
		}
	}
}
