package device

import (
	"context"
	"strings"
)

// MACs holds the three interface addresses stored in the device's NVRAM.
type MACs struct {
	WAN  string `json:"wan_mac"`
	LAN1 string `json:"lan1_mac"`
	LAN2 string `json:"lan2_mac"`
}

// GetMACs reads the stored addresses ("wan;lan1;lan2"). Missing entries
// come back empty.
func (c *Client) GetMACs(ctx context.Context) (MACs, error) {
	text, err := c.get(ctx, "/getmac")
	observe("/getmac", err)
	if err != nil {
		return MACs{}, err
	}

	parts := strings.Split(text, ";")
	var m MACs
	for i, dst := range []*string{&m.WAN, &m.LAN1, &m.LAN2} {
		if i < len(parts) {
			*dst = strings.TrimSpace(parts[i])
		}
	}
	return m, nil
}

// SetMACs persists the addresses. Any answer other than "success" is a
// *RejectedError.
func (c *Client) SetMACs(ctx context.Context, m MACs) error {
	text, err := c.post(ctx, "/setmac", []field{
		{"wan_mac", m.WAN},
		{"lan1_mac", m.LAN1},
		{"lan2_mac", m.LAN2},
	})
	if err == nil && text != TokenMACSaved {
		err = &RejectedError{Endpoint: "/setmac", Token: text}
	}
	observe("/setmac", err)
	return err
}
