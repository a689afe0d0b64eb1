package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/failsafe/internal/api/models"
	"github.com/smazurov/failsafe/internal/led"
)

func (s *Server) ledStatus() models.LEDStatusData {
	st := s.controls.Status()
	return models.LEDStatusData{
		Mode:          string(st.Mode),
		SpeedMS:       st.Speed.Milliseconds(),
		Running:       st.Running,
		Sequence:      st.Sequence,
		Locked:        st.Locked,
		InputsEnabled: st.InputsEnabled,
	}
}

func (s *Server) registerLEDRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-leds",
		Method:      http.MethodGet,
		Path:        "/api/leds",
		Summary:     "LED Status",
		Description: "Current marquee mode, speed, sequence and lock state",
		Tags:        []string{"leds"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.LEDStatusResponse, error) {
		return &models.LEDStatusResponse{Body: s.ledStatus()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-led-mode",
		Method:      http.MethodPost,
		Path:        "/api/leds/mode",
		Summary:     "Set LED Mode",
		Description: "Switch the marquee. Rejected with 423 while the flash lock is engaged.",
		Tags:        []string{"leds"},
		Errors:      []int{400, 401, 423},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.LEDModeRequest) (*models.LEDStatusResponse, error) {
		if !s.controls.InputsEnabled() {
			return nil, errLocked()
		}
		mode, err := led.ParseMode(input.Body.Mode)
		if err != nil {
			return nil, toHumaError("Invalid mode", err)
		}
		speed := time.Duration(input.Body.SpeedMS) * time.Millisecond
		if err := s.controls.SetMode(mode, speed); err != nil {
			return nil, toHumaError("Failed to set mode", err)
		}
		return &models.LEDStatusResponse{Body: s.ledStatus()}, nil
	})
}
