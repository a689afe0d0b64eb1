package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/failsafe/internal/device"
	"github.com/smazurov/failsafe/internal/flash"
	"github.com/smazurov/failsafe/internal/led"
	"github.com/smazurov/failsafe/internal/panel"
)

// errLocked is returned for mutating requests while the flash lock holds.
func errLocked() huma.StatusError {
	return huma.NewError(http.StatusLocked, "Controls are locked while the flash write is in progress")
}

// toHumaError maps domain errors onto HTTP statuses.
func toHumaError(msg string, err error) error {
	var rejected *device.RejectedError
	switch {
	case errors.Is(err, panel.ErrInputsDisabled), errors.Is(err, led.ErrLocked):
		return errLocked()
	case errors.Is(err, led.ErrUnknownMode):
		return huma.Error400BadRequest(msg, err)
	case errors.Is(err, flash.ErrAlreadyLocked):
		return huma.Error409Conflict(msg, err)
	case errors.As(err, &rejected):
		return huma.Error409Conflict(msg, err)
	case device.IsTransport(err):
		return huma.NewError(http.StatusBadGateway, msg, err)
	case errors.Is(err, led.ErrClosed):
		return huma.Error503ServiceUnavailable(msg, err)
	default:
		return huma.Error400BadRequest(msg, err)
	}
}
