package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
)

// Body is a request payload. The two implementations are JSONBody and
// *MultipartBody; the client derives the Content-Type header from which one
// it is given.
type Body interface {
	open() (r io.Reader, contentType string, err error)
}

// JSONBody is an already serialised JSON payload.
type JSONBody []byte

// JSONString wraps a pre-stringified JSON document.
func JSONString(s string) JSONBody { return JSONBody(s) }

// MarshalJSON serialises v into a JSONBody.
func MarshalJSON(v any) (JSONBody, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return JSONBody(b), nil
}

func (b JSONBody) open() (io.Reader, string, error) {
	return bytes.NewReader(b), "application/json", nil
}

// FilePart is one file field of a multipart form.
type FilePart struct {
	Field       string
	FileName    string
	ContentType string
	Content     io.Reader
}

// MultipartBody is an encoded multipart/form-data payload. Its Content-Type
// carries the boundary chosen at encoding time.
type MultipartBody struct {
	data        []byte
	contentType string
}

// NewMultipartBody encodes plain fields followed by file parts.
func NewMultipartBody(fields map[string]string, files ...FilePart) (*MultipartBody, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", name, err)
		}
	}

	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.FileName))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("create form file %s: %w", f.Field, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("copy form file %s: %w", f.Field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}
	return &MultipartBody{data: buf.Bytes(), contentType: w.FormDataContentType()}, nil
}

// ContentType returns the boundary-bearing multipart content type.
func (m *MultipartBody) ContentType() string {
	if m == nil {
		return ""
	}
	return m.contentType
}

func (m *MultipartBody) open() (io.Reader, string, error) {
	if m == nil {
		return nil, "", fmt.Errorf("%w: nil multipart body", ErrNilBody)
	}
	return bytes.NewReader(m.data), m.contentType, nil
}
