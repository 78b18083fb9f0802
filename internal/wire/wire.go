// Package wire holds the HTTP and event-stream plumbing shared by the
// provider adapters: a JSON POST helper with the common error mapping and a
// scanner for line-delimited event streams.
package wire

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/modelrelay/ag/provider"
)

// Post sends a JSON payload and returns the whole response body. A deadline
// hit maps to *provider.TimeoutError, a non-2xx status to
// *provider.ProtocolError.
func Post(ctx context.Context, client *http.Client, name, url string, headers map[string]string, payload []byte) ([]byte, error) {
	resp, err := send(ctx, client, name, url, headers, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mapErr(name, err)
	}
	return body, nil
}

// PostStream sends a JSON payload and returns the response body for event
// scanning. The caller owns closing it.
func PostStream(ctx context.Context, client *http.Client, name, url string, headers map[string]string, payload []byte) (io.ReadCloser, error) {
	resp, err := send(ctx, client, name, url, headers, payload)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func send(ctx context.Context, client *http.Client, name, url string, headers map[string]string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, mapErr(name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &provider.ProtocolError{
			Provider:   name,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
	return resp, nil
}

func mapErr(name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &provider.TimeoutError{Provider: name, Err: err}
	}
	return err
}

// maxEventSize bounds a single stream line. Encrypted reasoning payloads can
// run to megabytes.
const maxEventSize = 16 * 1024 * 1024

// Scanner iterates the data lines of a line-delimited event stream. Blank
// lines and event-name lines are skipped; the event name is redundant with
// the "type" field of every data object.
type Scanner struct {
	name string
	sc   *bufio.Scanner
	data []byte
	err  error
}

// NewScanner returns a scanner over the given stream body. The name is used
// in error values.
func NewScanner(name string, r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &Scanner{name: name, sc: sc}
}

// Next advances to the next data line. It returns false at end of stream or
// on error; Err distinguishes the two.
func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}
	for s.sc.Scan() {
		line := strings.TrimSpace(s.sc.Text())
		if line == "" || strings.HasPrefix(line, "event:") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			s.err = &provider.ResponseShapeError{
				Provider: s.name,
				Reason:   "stream line is neither an event name nor a data line",
			}
			return false
		}
		s.data = []byte(strings.TrimSpace(data))
		return true
	}
	if err := s.sc.Err(); err != nil {
		s.err = mapErr(s.name, err)
	}
	return false
}

// Data returns the payload of the current data line.
func (s *Scanner) Data() []byte {
	return s.data
}

// Err returns the error that terminated the scan, nil on clean end of
// stream.
func (s *Scanner) Err() error {
	return s.err
}
