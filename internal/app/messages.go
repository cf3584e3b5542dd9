package app

import (
	"github.com/MrWong99/phonescan/internal/display"
	"github.com/MrWong99/phonescan/internal/scan"
)

// Message types exchanged on the /v1/scan websocket.
const (
	// Client to server.
	MsgFrame  = "frame"
	MsgReject = "reject"
	MsgResume = "resume"

	// Server to client.
	MsgSession  = "session"
	MsgProgress = "progress"
	MsgResult   = "result"
	MsgError    = "error"
)

// ClientMessage is a JSON text message sent by a stream client. Binary
// messages carry an encoded image instead and are recognized server-side.
type ClientMessage struct {
	Type string `json:"type"`

	// Texts are the strings recognized in one frame. Used with MsgFrame.
	Texts []string `json:"texts,omitempty"`

	// Number is the misread result. Used with MsgReject.
	Number string `json:"number,omitempty"`
}

// ServerMessage is a JSON text message sent to a stream client.
type ServerMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`

	// Frame is the index of the frame the message refers to.
	Frame int64 `json:"frame"`

	// Best and BestCount describe the current leader. Set on progress.
	Best      string `json:"best,omitempty"`
	BestCount int64  `json:"best_count,omitempty"`

	// Settings are sent with MsgSession.
	Settings *SettingsMessage `json:"settings,omitempty"`

	// Finished mirrors the session state. Sent with MsgSession and MsgResult.
	Finished bool `json:"finished,omitempty"`

	Result *ResultMessage `json:"result,omitempty"`

	Error string `json:"error,omitempty"`
}

// SettingsMessage describes the settings a session runs with.
type SettingsMessage struct {
	Horizon             int64 `json:"horizon_frames"`
	Threshold           int64 `json:"threshold"`
	NormalizeUnicode    bool  `json:"normalize_unicode"`
	ContinueAfterResult bool  `json:"continue_after_result"`
}

// ResultMessage is a stable number with its display forms.
type ResultMessage struct {
	display.Formatted
	Frame     int64 `json:"frame"`
	Sightings int64 `json:"sightings"`
}

func settingsMessage(s scan.Settings) *SettingsMessage {
	return &SettingsMessage{
		Horizon:             s.Horizon,
		Threshold:           s.Threshold,
		NormalizeUnicode:    s.NormalizeUnicode,
		ContinueAfterResult: s.ContinueAfterResult,
	}
}

func resultMessage(r scan.Result) *ResultMessage {
	return &ResultMessage{
		Formatted: display.Format(r.Number),
		Frame:     r.Frame,
		Sightings: r.Sightings,
	}
}
