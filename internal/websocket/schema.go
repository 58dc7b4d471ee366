package websocket

import (
	"github.com/stemsi/nexus-backend/internal/daily"
	"github.com/stemsi/nexus-backend/internal/model"
	"github.com/stemsi/nexus-backend/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer       Action = "answer"
	ActionToggleOption Action = "toggle_option"
	ActionClear        Action = "clear"
	ActionNavigate     Action = "navigate"
	ActionJump         Action = "jump"
	ActionMark         Action = "mark"
	ActionSubmit       Action = "submit"
	ActionPing         Action = "ping"
)

// Request is a client message. Only the fields relevant to Action are set.
type Request struct {
	Action    Action `json:"action"`
	Answer    string `json:"answer,omitempty"`
	Option    int    `json:"option,omitempty"`
	Direction string `json:"direction,omitempty"` // "next" or "prev"
	Index     int    `json:"index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState   Event = "state"
	EventTick    Event = "tick"
	EventConfirm Event = "confirm_submit"
	EventGraded  Event = "graded"
	EventDaily   Event = "daily"
	EventError   Event = "error"
	EventPong    Event = "pong"
)

type StateResponse struct {
	Event    Event            `json:"event"`
	Snapshot session.Snapshot `json:"snapshot"`
}

type TickResponse struct {
	Event     Event `json:"event"`
	Remaining int   `json:"remaining_seconds"`
}

type ConfirmResponse struct {
	Event Event `json:"event"`
}

type GradedResponse struct {
	Event  Event         `json:"event"`
	Result *model.Result `json:"result"`
}

type DailyResponse struct {
	Event  Event        `json:"event"`
	Status daily.Status `json:"status"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
