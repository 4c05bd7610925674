package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/formapi/formapi/pkg/request"
	"github.com/formapi/formapi/pkg/store"
)

// childWriter captures an in-process response without a transport.
type childWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newChildWriter() *childWriter {
	return &childWriter{header: http.Header{}, status: http.StatusOK}
}

func (w *childWriter) Header() http.Header { return w.header }

func (w *childWriter) WriteHeader(status int) { w.status = status }

func (w *childWriter) Write(p []byte) (int, error) { return w.body.Write(p) }

// Call replays an internal request through the full middleware pipeline
// without a transport round trip. The recursion depth rides on the context
// so self-referential action chains fail fast instead of spinning.
func (s *Server) Call(ctx context.Context, cmd request.Command) (*request.Result, error) {
	ctx, err := request.EnterChild(ctx)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	if cmd.Body != nil {
		if err := json.NewEncoder(&body).Encode(cmd.Body); err != nil {
			return nil, err
		}
	}

	r, err := http.NewRequestWithContext(ctx, cmd.Method, cmd.Path, &body)
	if err != nil {
		return nil, err
	}
	if cmd.Query != nil {
		r.URL.RawQuery = cmd.Query.Encode()
	}
	r.Header.Set("Content-Type", "application/json")
	if cmd.User != nil {
		r = r.WithContext(request.WithUser(r.Context(), cmd.User))
	}

	w := newChildWriter()
	s.ServeHTTP(w, r)

	result := &request.Result{Status: w.status}
	if w.body.Len() == 0 {
		return result, nil
	}

	raw := bytes.TrimSpace(w.body.Bytes())
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &result.Items); err != nil {
			return nil, err
		}
		return result, nil
	}
	var item store.Document
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, err
	}
	result.Item = item
	return result, nil
}
