// Package wire defines the JSON message protocol between the orchestration
// engine and the isolated rendering contexts. The field names are a frozen
// contract shared with the renderer runtime; changing them breaks deployed
// renderers.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message kinds reported by a rendering context.
const (
	KindMounted = "mounted"
	KindPixels  = "pixels"
	KindData    = "data"
	KindReload  = "reload"
)

// ErrUnknownMessage indicates a frame that matches no known envelope.
var ErrUnknownMessage = errors.New("unknown wire message")

// Push carries a code bundle into a rendering context.
type Push struct {
	HTML        string   `json:"html"`
	CSS         string   `json:"css"`
	JS          string   `json:"js"`
	Events      []string `json:"events"`
	ScenarioID  string   `json:"scenarioId"`
	Name        string   `json:"name"`
	Interactive bool     `json:"interactive"`
}

// Reload forces a context restart without a new code payload.
type Reload struct {
	Message string `json:"message"`
	Name    string `json:"name"`
}

// NewReload builds a reload signal for the named channel.
func NewReload(name string) Reload {
	return Reload{Message: KindReload, Name: name}
}

// Mounted is the ready signal a context sends after (re)starting. Contexts
// may also send the bare string "mounted"; Parse accepts both forms.
type Mounted struct {
	Message string `json:"message"`
	Name    string `json:"name"`
}

// Capture reports rendered pixels back from a context. Either DataURL (a
// base64 PNG) or Buffer (base64 raw RGBA) is set, depending on Message being
// "pixels" or "data".
type Capture struct {
	Message    string `json:"message"`
	DataURL    string `json:"dataURL,omitempty"`
	Buffer     string `json:"buffer,omitempty"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	ScenarioID string `json:"scenarioId"`
	URLName    string `json:"urlName"`
}

// envelope is the minimal shape used to dispatch incoming frames.
type envelope struct {
	Message string `json:"message"`
}

// Parse decodes an incoming frame into one of Mounted or Capture.
func Parse(data []byte) (any, error) {
	// Bare "mounted" string form.
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == KindMounted {
			return Mounted{Message: KindMounted}, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, s)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse wire message: %w", err)
	}

	switch env.Message {
	case KindMounted:
		var m Mounted
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse mounted message: %w", err)
		}
		return m, nil
	case KindPixels, KindData:
		var c Capture
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("failed to parse capture message: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Message)
	}
}
