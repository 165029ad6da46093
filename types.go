package samp

import (
	"fmt"
	"sort"
	"strings"
)

// Well-known MTypes.
const (
	MTypePing              = "samp.app.ping"
	MTypeTableLoadFITS     = "table.load.fits"
	MTypeTableHighlightRow = "table.highlight.row"
	MTypeTableSelectRows   = "table.select.rowList"

	MTypeHubEventShutdown      = "samp.hub.event.shutdown"
	MTypeHubEventRegister      = "samp.hub.event.register"
	MTypeHubEventUnregister    = "samp.hub.event.unregister"
	MTypeHubEventMetadata      = "samp.hub.event.metadata"
	MTypeHubEventSubscriptions = "samp.hub.event.subscriptions"
	MTypeHubDisconnect         = "samp.hub.disconnect"
)

// Wire keys of messages and responses.
const (
	keyMType     = "samp.mtype"
	keyParams    = "samp.params"
	keyStatus    = "samp.status"
	keyResult    = "samp.result"
	keyError     = "samp.error"
	keyErrorText = "samp.errortxt"
)

type Status string

const (
	StatusOK      Status = "samp.ok"
	StatusWarning Status = "samp.warning"
	StatusError   Status = "samp.error"
)

// Message is a SAMP message: an MType plus its parameters.
type Message struct {
	MType  string
	Params Params
	// Extra carries non-standard top-level keys, passed through unchanged.
	Extra map[string]any
}

// NewMessage returns a message with the given MType and parameters.
func NewMessage(mtype string, params Params) Message {
	if params == nil {
		params = Params{}
	}
	return Message{MType: mtype, Params: params}
}

func (m Message) wire() map[string]any {
	out := make(map[string]any, len(m.Extra)+2)
	for k, v := range m.Extra {
		out[k] = v
	}
	params := map[string]any(m.Params)
	if params == nil {
		params = map[string]any{}
	}
	out[keyMType] = m.MType
	out[keyParams] = params
	return out
}

func messageFromWire(v any) (Message, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Message{}, fmt.Errorf("message is %T, not a map", v)
	}
	mtype, _ := m[keyMType].(string)
	if strings.TrimSpace(mtype) == "" {
		return Message{}, fmt.Errorf("message has no %s", keyMType)
	}
	msg := Message{MType: mtype, Params: Params{}}
	if p, ok := m[keyParams].(map[string]any); ok {
		msg.Params = Params(p)
	}
	for k, v := range m {
		if k == keyMType || k == keyParams {
			continue
		}
		if msg.Extra == nil {
			msg.Extra = map[string]any{}
		}
		msg.Extra[k] = v
	}
	return msg, nil
}

// Response is the answer to a SAMP call.
type Response struct {
	Status    Status
	Result    map[string]any
	ErrorText string
}

// OKResponse returns a samp.ok response with result.
func OKResponse(result map[string]any) Response {
	return Response{Status: StatusOK, Result: result}
}

// ErrorResponse returns a samp.error response with the given error text.
func ErrorResponse(text string) Response {
	return Response{Status: StatusError, ErrorText: text}
}

func (r Response) IsOK() bool { return r.Status == StatusOK }

func (r Response) wire() map[string]any {
	status := r.Status
	if status == "" {
		status = StatusOK
	}
	out := map[string]any{keyStatus: string(status)}
	if r.Result != nil {
		out[keyResult] = r.Result
	} else {
		out[keyResult] = map[string]any{}
	}
	if r.ErrorText != "" || status == StatusError {
		out[keyError] = map[string]any{keyErrorText: r.ErrorText}
	}
	return out
}

func responseFromWire(v any) (Response, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Response{}, fmt.Errorf("response is %T, not a map", v)
	}
	status, _ := m[keyStatus].(string)
	resp := Response{Status: Status(status)}
	if r, ok := m[keyResult].(map[string]any); ok {
		resp.Result = r
	}
	if e, ok := m[keyError].(map[string]any); ok {
		resp.ErrorText, _ = e[keyErrorText].(string)
	}
	return resp, nil
}

// Subscriptions maps subscribed MType patterns to per-subscription annotations.
type Subscriptions map[string]map[string]any

// MTypes returns the subscribed patterns in sorted order.
func (s Subscriptions) MTypes() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Matches reports whether any subscribed pattern matches mtype.
func (s Subscriptions) Matches(mtype string) bool {
	for pattern := range s {
		if MatchMType(pattern, mtype) {
			return true
		}
	}
	return false
}

func (s Subscriptions) wire() map[string]any {
	out := make(map[string]any, len(s))
	for k, v := range s {
		if v == nil {
			v = map[string]any{}
		}
		out[k] = v
	}
	return out
}

func subscriptionsFromWire(v any) Subscriptions {
	out := Subscriptions{}
	m, _ := v.(map[string]any)
	for k, a := range m {
		ann, _ := a.(map[string]any)
		if ann == nil {
			ann = map[string]any{}
		}
		out[k] = ann
	}
	return out
}

// MatchMType reports whether the subscription pattern matches mtype. A pattern is
// either an exact MType, "*", or a prefix ending in ".*" which matches every MType
// below that prefix.
func MatchMType(pattern, mtype string) bool {
	if pattern == "*" || pattern == mtype {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(mtype, strings.TrimSuffix(pattern, "*"))
	}
	return false
}
