package api

import (
	"context"
	"net/http"

	"github.com/phrazzld/postpilot/internal/api/shared"
	"github.com/phrazzld/postpilot/internal/relay"
)

// CommandRelay handles device commands.
type CommandRelay interface {
	Handle(ctx context.Context, cmd relay.Command) relay.CommandAck
}

// MobileHandler serves POST /api/mobile/commands.
type MobileHandler struct {
	relay CommandRelay
}

// NewMobileHandler creates a MobileHandler.
func NewMobileHandler(r CommandRelay) *MobileHandler {
	return &MobileHandler{relay: r}
}

// HandleCommand passes one command to the relay and answers with its ack.
// Accepted commands answer 200; rejections carry the ack with a status
// derived from the rejection cause.
func (h *MobileHandler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd relay.Command
	if err := shared.DecodeJSON(w, r, &cmd); err != nil {
		shared.RespondWithJSON(w, r, http.StatusBadRequest, relay.CommandAck{
			Status:       relay.StatusRejected,
			ErrorMessage: "invalid command format",
		})
		return
	}

	ack := h.relay.Handle(r.Context(), cmd)
	if ack.Accepted {
		shared.RespondWithJSON(w, r, http.StatusOK, ack)
		return
	}

	status := MapErrorToStatusCode(ack.Err)
	if status >= http.StatusInternalServerError {
		shared.RespondWithErrorAndLog(w, r, status, ack.ErrorMessage, ack.Err)
		return
	}
	shared.RespondWithJSON(w, r, status, ack)
}
