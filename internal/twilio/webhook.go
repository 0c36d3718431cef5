package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
)

// MessageHandler produces the reply for one inbound message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, sender, text string) (string, error)
}

type WebhookHandler struct {
	onMessage MessageHandler
	verifier  *Verifier
}

// NewWebhookHandler wires the messaging callback to onMessage. A nil
// verifier accepts every request.
func NewWebhookHandler(onMessage MessageHandler, verifier *Verifier) *WebhookHandler {
	return &WebhookHandler{
		onMessage: onMessage,
		verifier:  verifier,
	}
}

// HandleVerify answers the GET liveness probe on the webhook URL.
func (h *WebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleIncoming processes an inbound message callback. Body and From are
// read from the form or the query string.
func (h *WebhookHandler) HandleIncoming(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("webhook: panic while handling message: %v", rec)
			writeReply(w, ErrorReply(fmt.Errorf("%v", rec)))
		}
	}()

	if err := r.ParseForm(); err != nil {
		log.Warnf("webhook: invalid form: %v", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Invalid form"})
		return
	}

	if h.verifier != nil {
		if err := h.verifier.Verify(r); err != nil {
			log.Warnf("webhook: rejected request from %s: %v", r.RemoteAddr, err)
			writeJSON(w, http.StatusForbidden, map[string]string{"status": "error", "message": "Forbidden"})
			return
		}
	}

	log.Debugf("webhook: received request: %v", r.Form)
	text := strings.TrimSpace(r.FormValue("Body"))
	sender := r.FormValue("From")

	if text == "" {
		log.Warn("webhook: empty message received")
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Empty message"})
		return
	}

	log.Debugf("webhook: processing message from %s: %s", sender, text)
	reply, err := h.onMessage.HandleMessage(r.Context(), sender, text)
	if err != nil {
		log.Errorf("webhook: failed to handle message from %s: %v", sender, err)
		reply = ErrorReply(err)
	}

	writeReply(w, reply)
}

// ErrorReply is sent when the exchange itself failed.
func ErrorReply(err error) string {
	return fmt.Sprintf("I'm sorry, I encountered an error: %v", err)
}

func writeReply(w http.ResponseWriter, text string) {
	body := MessageResponse(text)
	log.Debugf("webhook: sending response: %s", body)

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("webhook: encoding response: %v", err)
	}
}
