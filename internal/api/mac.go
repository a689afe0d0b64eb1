package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/failsafe/internal/api/models"
	"github.com/smazurov/failsafe/internal/device"
)

func (s *Server) registerMACRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-mac",
		Method:      http.MethodGet,
		Path:        "/api/mac",
		Summary:     "Get MAC Addresses",
		Description: "Read the interface addresses stored on the device",
		Tags:        []string{"mac"},
		Errors:      []int{401, 502},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.MACResponse, error) {
		m, err := s.controls.MACs(ctx)
		if err != nil {
			return nil, toHumaError("Failed to read MAC addresses", err)
		}
		return &models.MACResponse{Body: models.MACData{WAN: m.WAN, LAN1: m.LAN1, LAN2: m.LAN2}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "save-mac",
		Method:      http.MethodPost,
		Path:        "/api/mac",
		Summary:     "Save MAC Addresses",
		Description: "Validate and store the interface addresses, optionally rebooting afterwards",
		Tags:        []string{"mac"},
		Errors:      []int{400, 401, 409, 423, 502},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.MACSaveRequest) (*models.MACSaveResponse, error) {
		if !s.controls.InputsEnabled() {
			return nil, errLocked()
		}
		macs := device.MACs{WAN: input.Body.WAN, LAN1: input.Body.LAN1, LAN2: input.Body.LAN2}
		if err := s.controls.SaveMACs(ctx, macs, input.Body.Reboot); err != nil {
			return nil, toHumaError("Failed to save MAC addresses", err)
		}
		resp := &models.MACSaveResponse{}
		resp.Body.Saved = true
		resp.Body.Rebooting = input.Body.Reboot
		resp.Body.Timestamp = time.Now()
		return resp, nil
	})
}

func (s *Server) registerMTDRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-mtd-layouts",
		Method:      http.MethodGet,
		Path:        "/api/mtd",
		Summary:     "MTD Layouts",
		Description: "Partition layouts offered by the device. Empty when the device has none.",
		Tags:        []string{"flash"},
		Errors:      []int{401, 502},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.MTDResponse, error) {
		layouts, err := s.controls.MTDLayouts(ctx)
		if err != nil {
			return nil, toHumaError("Failed to read MTD layouts", err)
		}
		resp := &models.MTDResponse{}
		resp.Body.Layouts = make([]models.MTDLayoutData, 0, len(layouts))
		for _, l := range layouts {
			resp.Body.Layouts = append(resp.Body.Layouts, models.MTDLayoutData{Label: l.Label, Current: l.Current})
		}
		return resp, nil
	})
}
