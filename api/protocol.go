package api

import (
	"io"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

const maxBodySize = 64 * 1024 // 64 KiB

const idempotencyKeyHeader = "Idempotency-Key"

// envelope is the body of every JSON response.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type deleteResponse struct {
	ID           int64 `json:"id"`
	DeletedTasks *int  `json:"deleted_tasks,omitempty"`
}

type positionsResponse struct {
	Updated int `json:"updated"`
}

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{Success: true, Data: data})
}

// sonicSerializer replaces echo's encoding/json based serializer.
type sonicSerializer struct{}

func (sonicSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (sonicSerializer) Deserialize(c echo.Context, i any) error {
	return decodeJSON(c.Request().Body, i)
}

func decodeJSON(r io.Reader, out any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(r, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
