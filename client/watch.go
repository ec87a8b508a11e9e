package client

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

// ErrStreamClosed is returned by Watch when the server ends the stream.
var ErrStreamClosed = errors.New("event stream closed by server")

// Watch consumes the board change stream and calls fn for every event until
// ctx is done or the connection drops. It returns ctx.Err() on cancellation.
func (c *Client) Watch(ctx context.Context, fn func(domain.BoardEvent)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/quality-board/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives any request timeout.
	streamClient := &http.Client{Transport: c.HTTP.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Op: "open stream", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err := DecodeEnvelope(resp.StatusCode, body, nil); err != nil {
			return err
		}
		return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	err = readEvents(resp.Body, fn)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return &TransportError{Op: "read stream", Err: err}
	}
	return ErrStreamClosed
}

// readEvents parses server-sent events. Comment lines and fields other than
// data are ignored; multi-line data is joined with newlines.
func readEvents(r io.Reader, fn func(domain.BoardEvent)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxResponseSize)

	var data strings.Builder
	dispatch := func() {
		if data.Len() == 0 {
			return
		}
		var ev domain.BoardEvent
		if err := sonic.UnmarshalString(data.String(), &ev); err == nil {
			fn(ev)
		}
		data.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			dispatch()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	dispatch()
	return scanner.Err()
}
