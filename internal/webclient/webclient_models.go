package webclient

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// BodyKind selects how a request body is built. It also fixes the
// Content-Type header the transport sends.
type BodyKind int

const (
	// BodyNone sends Params in the query string.
	BodyNone BodyKind = iota
	// BodyForm sends Params as application/x-www-form-urlencoded.
	BodyForm
	// BodyJSON sends Request.JSON verbatim as application/json.
	BodyJSON
	// BodyMultipart sends Params as text parts and Files as binary parts.
	BodyMultipart
)

func (k BodyKind) String() string {
	switch k {
	case BodyNone:
		return "none"
	case BodyForm:
		return "form"
	case BodyJSON:
		return "json"
	case BodyMultipart:
		return "multipart"
	default:
		return fmt.Sprintf("BodyKind(%d)", int(k))
	}
}

// Shape is the form in which the caller wants the response.
type Shape int

const (
	ShapeText Shape = iota
	ShapeBytes
	// ShapeStatus returns only the status code; the body is discarded unread.
	ShapeStatus
)

// File is one uploaded file payload.
type File struct {
	Name    string
	Content []byte
}

type Request struct {
	Method string
	Kind   BodyKind
	URL    string

	// Params are query or body parameters depending on Kind. A key with no
	// values is treated as absent and never sent.
	Params url.Values

	// Headers are applied after the transport defaults and override them.
	Headers http.Header

	// Encoding is a charset label such as "utf-8" or "gbk". Empty means the
	// transport default.
	Encoding string

	// JSON is the raw body for BodyJSON.
	JSON string

	// Files maps a form field to one or more files. Only valid for BodyMultipart.
	Files map[string][]File
}

// Validate checks that the body kind and payload fields agree.
func (r *Request) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("%w: empty url", ErrInvalidRequest)
	}
	if len(r.Files) > 0 && r.Kind == BodyJSON {
		return fmt.Errorf("%w: files cannot be combined with a JSON body", ErrInvalidRequest)
	}
	if len(r.Files) > 0 && r.Kind != BodyMultipart {
		return fmt.Errorf("%w: files require a multipart body, got %s", ErrInvalidRequest, r.Kind)
	}
	if r.JSON != "" && r.Kind != BodyJSON {
		return fmt.Errorf("%w: JSON body requires BodyJSON, got %s", ErrInvalidRequest, r.Kind)
	}
	return nil
}

func (r *Request) method() string {
	if r.Method != "" {
		return strings.ToUpper(r.Method)
	}
	if r.Kind == BodyNone {
		return http.MethodGet
	}
	return http.MethodPost
}

// Result is what the shared core produced. Only the field matching the
// requested Shape is filled; StatusCode is always set.
type Result struct {
	StatusCode int
	Header     http.Header
	Text       string
	Bytes      []byte
	Elapsed    time.Duration
}
