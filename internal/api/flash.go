package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/failsafe/internal/api/models"
	"github.com/smazurov/failsafe/internal/flash"
)

var stateMessages = map[flash.State]string{
	flash.StateLockedPending:      flash.MsgAuthorizing,
	flash.StateLockedCommitted:    flash.MsgCommitted,
	flash.StateLockedDisconnected: flash.MsgDisconnected,
}

func (s *Server) registerFlashRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-flash",
		Method:      http.MethodGet,
		Path:        "/api/flash",
		Summary:     "Flash State",
		Description: "Current flash guard state",
		Tags:        []string{"flash"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.FlashStateResponse, error) {
		state, id := s.controls.FlashState()
		return &models.FlashStateResponse{Body: models.FlashStateData{
			State:     string(state),
			AttemptID: id,
			Message:   stateMessages[state],
		}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "authorize-flash",
		Method:      http.MethodPost,
		Path:        "/api/flash",
		Summary:     "Authorize Flash",
		Description: "Freeze the indicators and inputs and ask the device to commit the uploaded image. " +
			"A rejected commit unlocks again and answers 409.",
		Tags:     []string{"flash"},
		Errors:   []int{401, 409, 423},
		Security: withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.FlashStateResponse, error) {
		if !s.controls.InputsEnabled() {
			return nil, errLocked()
		}
		state, err := s.controls.Authorize(ctx)
		if err != nil {
			return nil, toHumaError(flash.MsgRejected, err)
		}
		_, id := s.controls.FlashState()
		return &models.FlashStateResponse{Body: models.FlashStateData{
			State:     string(state),
			AttemptID: id,
			Message:   stateMessages[state],
		}}, nil
	})
}
