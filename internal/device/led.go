package device

import (
	"context"
	"strconv"
)

// SetLED drives one GPIO to a wire level. state is the electrical value,
// polarity already applied by the caller.
func (c *Client) SetLED(ctx context.Context, pin, state int) error {
	_, err := c.post(ctx, "/setled", []field{
		{"pin", strconv.Itoa(pin)},
		{"state", strconv.Itoa(state)},
	})
	observe("/setled", err)
	return err
}
