package bot

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/lojasmm/wabridge/internal/ai"
	"github.com/lojasmm/wabridge/internal/session"
	"github.com/lojasmm/wabridge/internal/store"
)

// Completer turns one user message into a reply.
type Completer interface {
	Complete(ctx context.Context, message string) (string, error)
}

// Handler runs one conversation exchange per inbound message.
type Handler struct {
	store     store.Store
	completer Completer
	sessions  *session.Manager
	maxTurns  int
}

func NewHandler(s store.Store, c Completer, sessions *session.Manager) *Handler {
	return &Handler{store: s, completer: c, sessions: sessions, maxTurns: store.MaxTurns}
}

// HandleMessage records the user turn, asks the completion service for a
// reply, records it and trims the history. text must already be trimmed
// and non-empty.
//
// A completion failure is not an error: the user gets the fallback reply.
// The returned error covers store failures only.
func (h *Handler) HandleMessage(ctx context.Context, sender, text string) (string, error) {
	exchangeID := "ex_" + uuid.New().String()[:8]
	logger := log.WithFields(log.Fields{"exchange": exchangeID, "sender": sender})

	var reply string
	err := h.sessions.WithLock(sender, func() error {
		// the caller may have gone away while waiting on the sender lock
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("waiting for sender lock: %w", err)
		}
		if _, err := h.store.GetOrInit(sender); err != nil {
			return fmt.Errorf("loading history: %w", err)
		}
		if err := h.store.Append(sender, store.RoleUser, text); err != nil {
			return fmt.Errorf("recording user turn: %w", err)
		}

		logger.Debugf("bot: getting reply for %q", text)
		out, err := h.completer.Complete(ctx, text)
		if err != nil {
			ce := ai.ClassifyError(err)
			logger.Errorf("bot: completion failed (%s): %v", ce.Type, err)
			reply = ai.FallbackReply(err)
		} else {
			reply = out
			if err := h.store.Append(sender, store.RoleAssistant, reply); err != nil {
				return fmt.Errorf("recording assistant turn: %w", err)
			}
		}

		// trimmed on failures too so repeated errors cannot grow the history
		if err := h.store.Truncate(sender, h.maxTurns); err != nil {
			return fmt.Errorf("truncating history: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.Errorf("bot: exchange failed: %v", err)
		return "", err
	}

	logger.Debugf("bot: reply %q", reply)
	return reply, nil
}
