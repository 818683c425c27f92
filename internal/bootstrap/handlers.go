package bootstrap

import (
	"context"

	"github.com/bytedance/sonic"

	"signage-agent-go/internal/domain/command"
	commandmodel "signage-agent-go/internal/domain/command/model"
	errs "signage-agent-go/internal/platform/errors"
)

type previewPayload struct {
	URL             string `json:"url"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

type screenSharePayload struct {
	SessionURL string `json:"session_url"`
}

// registerHandlers binds the built-in command kinds to the session manager.
func registerHandlers(registry *command.Registry, state *appState) error {
	handlers := map[string]command.Handler{
		commandmodel.KindPreviewContent: func(_ context.Context, cmd commandmodel.Command) error {
			var payload previewPayload
			if len(cmd.Payload) > 0 {
				if err := sonic.Unmarshal(cmd.Payload, &payload); err != nil {
					return errs.Wrap(errs.KindCommand, "handler.preview-content", "bad payload", err)
				}
			}
			if payload.URL == "" {
				return errs.New(errs.KindCommand, "handler.preview-content", "payload missing url")
			}
			state.logger.Info("previewing content %s", payload.URL)
			state.session.SetScreenActive(true)
			return nil
		},

		commandmodel.KindScreenShare: func(_ context.Context, cmd commandmodel.Command) error {
			var payload screenSharePayload
			if len(cmd.Payload) > 0 {
				if err := sonic.Unmarshal(cmd.Payload, &payload); err != nil {
					return errs.Wrap(errs.KindCommand, "handler.screen-share", "bad payload", err)
				}
			}
			if payload.SessionURL == "" {
				return errs.New(errs.KindCommand, "handler.screen-share", "payload missing session_url")
			}
			state.logger.Info("joining screen share session")
			state.session.SetScreenActive(true)
			return nil
		},

		commandmodel.KindSyncStatus: func(context.Context, commandmodel.Command) error {
			state.session.SyncNow()
			return nil
		},

		// Logout runs detached: its teardown pauses the dispatcher, and the
		// dispatcher is waiting on this very handler. The command acks
		// completed once the logout is underway.
		commandmodel.KindLogout: func(context.Context, commandmodel.Command) error {
			go func() {
				if err := state.session.Logout(context.Background()); err != nil {
					state.logger.Error("remote logout failed: %v", err)
				}
			}()
			return nil
		},
	}

	for kind, handler := range handlers {
		if err := registry.Register(kind, handler); err != nil {
			return err
		}
	}
	return nil
}
