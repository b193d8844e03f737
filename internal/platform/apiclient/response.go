package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind tells which half of a Response is populated.
type Kind int

const (
	KindJSON Kind = iota + 1
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Response is a successful reply. Exactly one of JSON and Binary is set,
// according to Kind.
type Response struct {
	Kind        Kind
	Status      int
	ContentType string
	Header      http.Header
	JSON        json.RawMessage
	Binary      []byte
}

// Decode unmarshals a JSON response into v.
func (r *Response) Decode(v any) error {
	if r.Kind != KindJSON {
		return fmt.Errorf("%w: got %s (%s)", ErrNotJSON, r.Kind, r.ContentType)
	}
	if err := json.Unmarshal(r.JSON, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
