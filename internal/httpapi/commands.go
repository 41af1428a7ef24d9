// Package httpapi exposes the command surface from spec.md §6 over HTTP and
// WebSocket, for demo/ops use rather than the realtime producer path (which
// is internal/queue.Commander, used directly by in-process Go callers).
//
// Grounded on the teacher's internal/api package: chi + cors middleware
// stack (router.go), golang.org/x/time/rate-based per-IP limiting
// (ratelimit.go), and a gorilla/websocket hub (websocket.go) — all
// generalized from game-state broadcast to command submission.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sms-engine/internal/queue"
)

// Sink is the minimal surface httpapi needs from an Engine/Commander: just
// enough to enqueue one Command, per queue.Sink.
type Sink interface {
	Enqueue(cmd queue.Command)
}

// commandRequest is the wire shape for POST /commands/{verb}. Only the
// fields relevant to a given verb need to be set; unused fields are
// ignored, mirroring Command's own "exactly one group of fields is
// meaningful" shape.
type commandRequest struct {
	Name      string  `json:"name,omitempty"`
	Prefix    string  `json:"prefix,omitempty"`
	Number    float64 `json:"number,omitempty"`
	Text      string  `json:"text,omitempty"`
	Volume    float64 `json:"volume,omitempty"`
	LengthMS  float64 `json:"length_ms,omitempty"`
	Curve     string  `json:"curve,omitempty"` // "exponential" | "logarithmic" | "linear"
}

func (r commandRequest) length() time.Duration {
	return time.Duration(r.LengthMS * float64(time.Millisecond))
}

func (r commandRequest) curve() queue.Curve {
	switch r.Curve {
	case "logarithmic":
		return queue.CurveLogarithmic
	case "linear":
		return queue.CurveLinear
	default:
		return queue.CurveExponential
	}
}

// verbs maps a URL verb to the Command it builds from a decoded request.
// Built once at package init since none of it is per-request state.
var verbs = map[string]func(commandRequest) (queue.Command, error){
	"precache":          func(r commandRequest) (queue.Command, error) { return queue.Precache(r.Name), nil },
	"unprecache":        func(r commandRequest) (queue.Command, error) { return queue.Unprecache(r.Name), nil },
	"unprecache_all":    func(r commandRequest) (queue.Command, error) { return queue.UnprecacheAll(), nil },

	"control_set_number":   func(r commandRequest) (queue.Command, error) { return queue.ControlSetNumber(r.Name, r.Number), nil },
	"control_set_string":   func(r commandRequest) (queue.Command, error) { return queue.ControlSetString(r.Name, r.Text), nil },
	"control_clear":         func(r commandRequest) (queue.Command, error) { return queue.ControlClear(r.Name), nil },
	"control_clear_prefixed": func(r commandRequest) (queue.Command, error) { return queue.ControlClearPrefixed(r.Prefix), nil },
	"control_clear_all":     func(r commandRequest) (queue.Command, error) { return queue.ControlClearAll(), nil },

	"bus_fade_to":              func(r commandRequest) (queue.Command, error) { return queue.BusFadeTo(r.Name, r.Volume, r.length(), r.curve()), nil },
	"bus_fade_prefixed_to":     func(r commandRequest) (queue.Command, error) { return queue.BusFadePrefixedTo(r.Prefix, r.Volume, r.length(), r.curve()), nil },
	"bus_fade_all_to":          func(r commandRequest) (queue.Command, error) { return queue.BusFadeAllTo(r.Volume, r.length(), r.curve()), nil },
	"bus_fade_all_except_main_to": func(r commandRequest) (queue.Command, error) { return queue.BusFadeAllExceptMainTo(r.Volume, r.length(), r.curve()), nil },
	"bus_fade_out":             func(r commandRequest) (queue.Command, error) { return queue.BusFadeOut(r.Name, r.length(), r.curve()), nil },
	"bus_fade_prefixed_out":    func(r commandRequest) (queue.Command, error) { return queue.BusFadePrefixedOut(r.Prefix, r.length(), r.curve()), nil },
	"bus_fade_all_out":         func(r commandRequest) (queue.Command, error) { return queue.BusFadeAllOut(r.length(), r.curve()), nil },
	"bus_fade_all_except_main_out": func(r commandRequest) (queue.Command, error) { return queue.BusFadeAllExceptMainOut(r.length(), r.curve()), nil },
	"bus_kill":                 func(r commandRequest) (queue.Command, error) { return queue.BusKill(r.Name), nil },
	"bus_kill_prefixed":        func(r commandRequest) (queue.Command, error) { return queue.BusKillPrefixed(r.Prefix), nil },
	"bus_kill_all":             func(r commandRequest) (queue.Command, error) { return queue.BusKillAll(), nil },
	"bus_kill_all_except_main": func(r commandRequest) (queue.Command, error) { return queue.BusKillAllExceptMain(), nil },

	"start_flow":           func(r commandRequest) (queue.Command, error) { return queue.FlowStart(r.Name, r.Volume, r.length(), r.curve()), nil },
	"fade_flow_to":         func(r commandRequest) (queue.Command, error) { return queue.FlowFadeTo(r.Name, r.Volume, r.length(), r.curve()), nil },
	"fade_flow_prefixed_to": func(r commandRequest) (queue.Command, error) { return queue.FlowFadePrefixedTo(r.Prefix, r.Volume, r.length(), r.curve()), nil },
	"fade_flow_all_to":     func(r commandRequest) (queue.Command, error) { return queue.FlowFadeAllTo(r.Volume, r.length(), r.curve()), nil },
	"fade_flow_out":        func(r commandRequest) (queue.Command, error) { return queue.FlowFadeOut(r.Name, r.length(), r.curve()), nil },
	"fade_flow_prefixed_out": func(r commandRequest) (queue.Command, error) { return queue.FlowFadePrefixedOut(r.Prefix, r.length(), r.curve()), nil },
	"fade_flow_all_out":    func(r commandRequest) (queue.Command, error) { return queue.FlowFadeAllOut(r.length(), r.curve()), nil },
	"kill_flow":            func(r commandRequest) (queue.Command, error) { return queue.FlowKill(r.Name), nil },
	"kill_flow_prefixed":   func(r commandRequest) (queue.Command, error) { return queue.FlowKillPrefixed(r.Prefix), nil },
	"kill_flow_all":        func(r commandRequest) (queue.Command, error) { return queue.FlowKillAll(), nil },
}

// buildCommand decodes body and looks up verb, returning the Command ready
// for Sink.Enqueue.
func buildCommand(verb string, body []byte) (queue.Command, error) {
	build, ok := verbs[verb]
	if !ok {
		return queue.Command{}, fmt.Errorf("unknown command verb %q", verb)
	}
	var req commandRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return queue.Command{}, fmt.Errorf("decode body: %w", err)
		}
	}
	return build(req)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
