package events

// Event type constants for kelindar/event.
const (
	TypeLEDFrame uint32 = iota + 1
	TypeFlashState
	TypeInputsState
	TypeStatusMessage
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// LEDFrameEvent mirrors the indicators lit after a marquee update.
type LEDFrameEvent struct {
	Mode      string `json:"mode" example:"loop" doc:"Marquee mode that produced the frame"`
	Step      int    `json:"step" example:"3" doc:"Tick counter since the mode was selected"`
	Active    []int  `json:"active" example:"[12]" doc:"Lit pins"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Frame timestamp"`
}

// Type returns the event type identifier for LEDFrameEvent.
func (e LEDFrameEvent) Type() uint32 { return TypeLEDFrame }

// FlashStateEvent reports a flash guard transition.
type FlashStateEvent struct {
	AttemptID string `json:"attempt_id" example:"8a3c..." doc:"Authorization attempt identifier"`
	State     string `json:"state" example:"locked_pending" doc:"Guard state"`
	Token     string `json:"token,omitempty" example:"commit_accepted" doc:"Server answer, when one arrived"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Transition timestamp"`
}

// Type returns the event type identifier for FlashStateEvent.
func (e FlashStateEvent) Type() uint32 { return TypeFlashState }

// InputsStateEvent tells clients whether mutating controls are usable.
type InputsStateEvent struct {
	Enabled   bool   `json:"enabled" example:"false" doc:"Whether inputs accept changes"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Change timestamp"`
}

// Type returns the event type identifier for InputsStateEvent.
func (e InputsStateEvent) Type() uint32 { return TypeInputsState }

// StatusMessageEvent is a user-facing message, success or error.
type StatusMessageEvent struct {
	Target     string `json:"target" example:"flash" doc:"Panel the message belongs to"`
	Text       string `json:"text" example:"NAND WRITE STARTED" doc:"Message text"`
	Error      bool   `json:"error" example:"false" doc:"Whether the message reports a failure"`
	Persistent bool   `json:"persistent" example:"true" doc:"Whether the message should stay visible"`
	Timestamp  string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Message timestamp"`
}

// Type returns the event type identifier for StatusMessageEvent.
func (e StatusMessageEvent) Type() uint32 { return TypeStatusMessage }

// LogEntryEvent carries one log line to SSE clients.
type LogEntryEvent struct {
	Timestamp  string         `json:"timestamp" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"flash" doc:"Module that logged"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
