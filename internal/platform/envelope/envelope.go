// Package envelope decodes the backend's response wrapper. Endpoints disagree
// on field names (estado vs success, mensaje vs message, tipoError vs
// errorType) and some return a bare array or object with no wrapper at all;
// Decode resolves every variant into one Envelope value.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Machine error tags the backend uses to signal conflicts.
const (
	KindDuplicate        = "duplicado"
	KindDuplicatePatient = "duplicado_paciente"
	KindDuplicateDoctor  = "duplicado_medico"
)

// Outcome is the resolved success flag of a payload.
type Outcome int

const (
	// OutcomeBare means the payload carried no success flag; Data holds
	// the whole payload.
	OutcomeBare Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "bare"
	}
}

// DefaultFailureMessage is used for failure envelopes without a message.
const DefaultFailureMessage = "backend reported failure"

// ErrMalformed is returned when the payload is not JSON at all.
var ErrMalformed = errors.New("malformed envelope")

// Envelope is the decoded wrapper.
type Envelope struct {
	Outcome   Outcome
	Data      json.RawMessage
	Message   string
	ErrorKind string
	Total     *int
}

// OK reports whether the payload can be consumed as data.
func (e Envelope) OK() bool { return e.Outcome != OutcomeFailure }

// Err returns an *Error for failure envelopes and nil otherwise.
func (e Envelope) Err() error {
	if e.Outcome != OutcomeFailure {
		return nil
	}
	msg := e.Message
	if msg == "" {
		msg = DefaultFailureMessage
	}
	return &Error{Message: msg, Kind: e.ErrorKind}
}

// Error is a failure reported inside a 2xx envelope.
type Error struct {
	Message string
	Kind    string
}

func (e *Error) Error() string { return e.Message }

// ErrorKind returns the machine error tag.
func (e *Error) ErrorKind() string { return e.Kind }

type kinded interface {
	ErrorKind() string
}

// IsDuplicate reports whether err carries one of the duplicado* tags. It
// recognises any error in the chain exposing ErrorKind, so HTTP failures from
// the API client qualify too.
func IsDuplicate(err error) bool {
	var k kinded
	if !errors.As(err, &k) {
		return false
	}
	return strings.HasPrefix(k.ErrorKind(), KindDuplicate)
}

// wire lists every field spelling seen across endpoints.
type wire struct {
	Estado    json.RawMessage `json:"estado"`
	Success   json.RawMessage `json:"success"`
	Status    json.RawMessage `json:"status"`
	Data      json.RawMessage `json:"data"`
	Mensaje   json.RawMessage `json:"mensaje"`
	Message   json.RawMessage `json:"message"`
	TipoError json.RawMessage `json:"tipoError"`
	ErrorType json.RawMessage `json:"errorType"`
	Total     json.RawMessage `json:"total"`
}

// Decode resolves raw into an Envelope.
func Decode(raw []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return Envelope{}, ErrMalformed
	}
	if trimmed[0] != '{' {
		return Envelope{Outcome: OutcomeBare, Data: json.RawMessage(trimmed)}, nil
	}

	// Every field is raw so an odd type in one of them never hides the flag.
	var w wire
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	env := Envelope{
		Data:      w.Data,
		Message:   firstText(w.Mensaje, w.Message),
		ErrorKind: firstText(w.TipoError, w.ErrorType),
		Total:     intField(w.Total),
	}

	flag, ok := firstFlag(w.Estado, w.Success, w.Status)
	switch {
	case ok && flag:
		env.Outcome = OutcomeSuccess
	case ok && !flag:
		env.Outcome = OutcomeFailure
	case len(w.Data) > 0:
		env.Outcome = OutcomeSuccess
	default:
		env.Outcome = OutcomeBare
		env.Data = json.RawMessage(trimmed)
	}
	return env, nil
}

// firstText returns the first field holding text. A list of strings, as
// validation failures send, is joined with "; ".
func firstText(fields ...json.RawMessage) string {
	for _, f := range fields {
		if t := text(f); t != "" {
			return t
		}
	}
	return ""
}

func text(f json.RawMessage) string {
	if len(f) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(f, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(f, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return ""
}

// intField reads a count sent either as a number or as a numeric string.
func intField(f json.RawMessage) *int {
	if len(f) == 0 {
		return nil
	}
	var n int
	if err := json.Unmarshal(f, &n); err == nil {
		return &n
	}
	var s string
	if err := json.Unmarshal(f, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return &n
		}
	}
	return nil
}

// firstFlag returns the first field that reads as a boolean. status is also
// accepted as a word ("ok", "success", "error", "fail") since some endpoints
// send it that way.
func firstFlag(fields ...json.RawMessage) (bool, bool) {
	for _, f := range fields {
		if len(f) == 0 {
			continue
		}
		var b bool
		if err := json.Unmarshal(f, &b); err == nil {
			return b, true
		}
		var s string
		if err := json.Unmarshal(f, &s); err == nil {
			switch strings.ToLower(s) {
			case "ok", "success", "true":
				return true, true
			case "error", "fail", "failed", "false":
				return false, true
			}
		}
	}
	return false, false
}

// DecodeData unmarshals the envelope's data into T. A missing or null data
// field yields the zero value.
func DecodeData[T any](env Envelope) (T, error) {
	var out T
	if len(env.Data) == 0 || bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return out, nil
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("decode envelope data: %w", err)
	}
	return out, nil
}

// DecodeList decodes raw as an envelope whose data is a list of T. Failure
// envelopes return their *Error. A missing list yields an empty, non-nil
// slice.
func DecodeList[T any](raw []byte) ([]T, Envelope, error) {
	env, err := Decode(raw)
	if err != nil {
		return nil, env, err
	}
	if err := env.Err(); err != nil {
		return nil, env, err
	}
	items, err := DecodeData[[]T](env)
	if err != nil {
		return nil, env, err
	}
	if items == nil {
		items = []T{}
	}
	return items, env, nil
}
