package webclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
)

// ServerError means the origin rejected the request through a {code, message}
// envelope in a binary response. Text responses are returned whatever their
// status; the caller reads the envelope itself.
type ServerError struct {
	Code    int
	Message string

	// StatusCode is the HTTP status the envelope arrived with. It may be 200.
	StatusCode int
	URL        string
}

func (e *ServerError) Error() string {
	if e == nil {
		return "server error"
	}
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("server error %d", e.Code)
	}
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// TransportError wraps a network-level failure: refused connection, timeout,
// broken body.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "transport error"
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AsServerError reports whether err carries a *ServerError.
func AsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsTransportError reports whether err carries a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// parseEnvelope extracts a {code, message} envelope. It returns nil when
// body is not a JSON object or has no code.
func parseEnvelope(body []byte) *ServerError {
	var env struct {
		Code    json.RawMessage `json:"code"`
		Message *string         `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	code, ok := flexibleInt(env.Code)
	if !ok {
		return nil
	}
	se := &ServerError{Code: code}
	if env.Message != nil {
		se.Message = *env.Message
	}
	return se
}

// flexibleInt accepts 40001 as well as "40001".
func flexibleInt(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := n.Int64(); err == nil {
			return int(v), true
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return v, true
		}
	}
	return 0, false
}
