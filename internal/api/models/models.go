package models

import "time"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version       string `json:"version" example:"dev" doc:"Application version"`
	GitCommit     string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate     string `json:"build_date" example:"2026-01-27T10:30:00Z" doc:"Build timestamp"`
	GoVersion     string `json:"go_version" example:"go1.24.11" doc:"Go compiler version"`
	Platform      string `json:"platform" example:"linux/arm64" doc:"Build platform"`
	DeviceVersion string `json:"device_version,omitempty" example:"U-Boot 2024.07" doc:"Recovery server firmware version, empty when unreachable"`
}

type VersionResponse struct {
	Body VersionData
}

// LED models
type LEDStatusData struct {
	Mode          string `json:"mode" example:"loop" doc:"Current marquee mode"`
	SpeedMS       int64  `json:"speed_ms" example:"600" doc:"Tick interval in milliseconds"`
	Running       bool   `json:"running" example:"true" doc:"Whether the marquee timer is active"`
	Sequence      []int  `json:"sequence" example:"[25,24,23,12,13,10]" doc:"Indicator pins in marquee order"`
	Locked        bool   `json:"locked" example:"false" doc:"Whether the flash lock is engaged"`
	InputsEnabled bool   `json:"inputs_enabled" example:"true" doc:"Whether mutating controls are accepted"`
}

type LEDStatusResponse struct {
	Body LEDStatusData
}

type LEDModeRequest struct {
	Body struct {
		Mode    string `json:"mode" enum:"stop,allon,loop,down,up,blink" example:"loop" doc:"Marquee mode"`
		SpeedMS int    `json:"speed_ms,omitempty" example:"600" doc:"Tick interval in milliseconds, configured speed when omitted"`
	}
}

// Flash models
type FlashStateData struct {
	State     string `json:"state" example:"locked_committed" doc:"Flash guard state"`
	AttemptID string `json:"attempt_id,omitempty" example:"6f1c2d2e-8b9a-4a43-9c1d-2a3b4c5d6e7f" doc:"Latest authorization attempt"`
	Message   string `json:"message,omitempty" doc:"User-facing outcome"`
}

type FlashStateResponse struct {
	Body FlashStateData
}

// MAC models
type MACData struct {
	WAN  string `json:"wan_mac" example:"62:88:9F:78:7D:A4" doc:"WAN interface address"`
	LAN1 string `json:"lan1_mac" example:"62:88:9F:78:7D:A5" doc:"LAN1 interface address"`
	LAN2 string `json:"lan2_mac" example:"62:88:9F:78:7D:A6" doc:"LAN2 interface address"`
}

type MACResponse struct {
	Body MACData
}

type MACSaveRequest struct {
	Body struct {
		WAN    string `json:"wan_mac" example:"62:88:9F:78:7D:A4" doc:"WAN interface address"`
		LAN1   string `json:"lan1_mac" example:"62:88:9F:78:7D:A5" doc:"LAN1 interface address"`
		LAN2   string `json:"lan2_mac" example:"62:88:9F:78:7D:A6" doc:"LAN2 interface address"`
		Reboot bool   `json:"reboot,omitempty" doc:"Reboot the device after saving"`
	}
}

type MACSaveResponse struct {
	Body struct {
		Saved     bool      `json:"saved" doc:"Whether the device stored the addresses"`
		Rebooting bool      `json:"rebooting" doc:"Whether a reboot was requested"`
		Timestamp time.Time `json:"timestamp" doc:"Completion time"`
	}
}

// MTD models
type MTDLayoutData struct {
	Label   string `json:"label" example:"default" doc:"Layout name"`
	Current bool   `json:"current" example:"true" doc:"Whether this layout is active"`
}

type MTDResponse struct {
	Body struct {
		Layouts []MTDLayoutData `json:"layouts" doc:"Available partition layouts"`
	}
}
