package device

import (
	"context"
	"encoding/json"
	"strings"
)

// Layout is one selectable MTD partition layout.
type Layout struct {
	Label   string `json:"label"`
	Current bool   `json:"current"`
}

// Version returns the recovery server's firmware version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	v, err := c.get(ctx, "/version")
	observe("/version", err)
	return v, err
}

// Reboot asks the device to restart. The connection commonly drops before
// an answer arrives; callers decide whether that matters.
func (c *Client) Reboot(ctx context.Context) error {
	_, err := c.post(ctx, "/reboot", nil)
	observe("/reboot", err)
	return err
}

// MTDLayouts lists the partition layouts the device offers. It queries the
// JSON endpoint first and falls back to the legacy semicolon list when that
// endpoint is missing or answers garbage. An empty result is not an error.
func (c *Client) MTDLayouts(ctx context.Context) ([]Layout, error) {
	text, err := c.get(ctx, "/mtd_layouts")
	observe("/mtd_layouts", err)
	if err == nil {
		var layouts []Layout
		if jsonErr := json.Unmarshal([]byte(text), &layouts); jsonErr == nil {
			return layouts, nil
		}
		c.logger.Debug("MTD layout list is not JSON, trying legacy endpoint")
	} else {
		c.logger.Debug("MTD layout endpoint unavailable, trying legacy endpoint", "error", err)
	}

	text, err = c.get(ctx, "/getmtdlayout")
	observe("/getmtdlayout", err)
	if err != nil {
		return nil, err
	}
	return ParseLegacyLayouts(text), nil
}

// ParseLegacyLayouts decodes "current;opt1;opt2;". The first entry names
// the layout in use; the rest are the choices.
func ParseLegacyLayouts(text string) []Layout {
	if text == TokenLayoutError || text == "" {
		return nil
	}

	parts := strings.Split(text, ";")
	current := parts[0]
	layouts := make([]Layout, 0, len(parts)-1)
	for _, label := range parts[1:] {
		if label == "" {
			continue
		}
		layouts = append(layouts, Layout{Label: label, Current: label == current})
	}
	return layouts
}
