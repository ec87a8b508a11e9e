package client

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
)

// APIError is a business failure reported by the server through
// {success:false, error:{message}} or an error status code.
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// TransportError covers network failures and bodies that are not an envelope.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

type rawEnvelope struct {
	Success *bool                  `json:"success"`
	Data    sonic.NoCopyRawMessage `json:"data"`
	Error   *struct {
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

// DecodeEnvelope interprets a response body. A missing success flag counts
// as success unless the status code says otherwise. When out is non-nil and
// data is present and not null, data is decoded into out.
func DecodeEnvelope(status int, body []byte, out any) error {
	var env rawEnvelope
	if len(bytes.TrimSpace(body)) == 0 {
		if status >= http.StatusBadRequest {
			return &APIError{Status: status, Message: http.StatusText(status)}
		}
		return nil
	}
	if err := sonic.Unmarshal(body, &env); err != nil {
		if status >= http.StatusBadRequest {
			return &APIError{Status: status, Message: http.StatusText(status)}
		}
		return &TransportError{Op: "decode response", Err: err}
	}

	failed := (env.Success != nil && !*env.Success) || status >= http.StatusBadRequest
	if failed {
		apiErr := &APIError{Status: status}
		if env.Error != nil {
			apiErr.Message = env.Error.Message
			apiErr.Fields = env.Error.Fields
		}
		if apiErr.Message == "" && status >= http.StatusBadRequest {
			apiErr.Message = http.StatusText(status)
		}
		if apiErr.Message == "" {
			apiErr.Message = "request failed"
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := sonic.Unmarshal(env.Data, out); err != nil {
		return &TransportError{Op: "decode data", Err: err}
	}
	return nil
}
