// Package protocol implements the framing a TLQ server speaks: one HTTP/1.1 request per
// TCP connection, answered by one response, after which the server closes the connection.
//
// Request frame:
//
//	POST /add HTTP/1.1\r\n
//	Host: localhost:1337\r\n
//	Content-Type: application/json\r\n
//	Content-Length: 17\r\n
//	Connection: close\r\n
//	\r\n
//	{"body":"hello"}
//
// The response is read until EOF and split at the first blank line. Only the status code
// of the response head is interpreted; the body is handed back untouched.
package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"
)

const (
	MethodGet  = "GET"
	MethodPost = "POST"

	// MaxResponseSize bounds how much of a response is buffered.
	MaxResponseSize = 64 << 20
)

var (
	// ErrMalformed is returned for a response without a header/body separator.
	ErrMalformed = errors.New("invalid HTTP response")
	// ErrTooLarge is returned when a response exceeds MaxResponseSize.
	ErrTooLarge = errors.New("response too large")
)

var headerEnd = []byte("\r\n\r\n")

// Request is one call to a TLQ endpoint.
type Request struct {
	Method      string
	Path        string // e.g. "/add"
	Host        string // Value of the Host header
	ContentType string // Set only when Body is present
	Body        []byte

	// MessageSize is the size of the queue message Body carries, reported when the
	// server answers 413. Zero means len(Body). Not sent on the wire.
	MessageSize int
}

// Response is a parsed server reply.
type Response struct {
	Status int    // 0 when the status line could not be parsed
	Reason string
	Body   []byte
}

// StatusError is a response whose status is 400 or above.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// Encode writes a complete request frame to w.
func Encode(w io.Writer, req *Request) error {
	var buf bytes.Buffer
	buf.Grow(128 + len(req.Body))

	fmt.Fprintf(&buf, "%s %s HTTP/1.1\r\n", req.Method, req.Path)
	fmt.Fprintf(&buf, "Host: %s\r\n", req.Host)
	if req.Body != nil {
		contentType := req.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		fmt.Fprintf(&buf, "Content-Type: %s\r\n", contentType)
		fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(req.Body))
	}
	buf.WriteString("Connection: close\r\n\r\n")
	buf.Write(req.Body)

	_, err := w.Write(buf.Bytes())
	return err
}

// Decode reads r to EOF and parses the result with ParseResponse.
func Decode(r io.Reader) (*Response, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > MaxResponseSize {
		return nil, ErrTooLarge
	}
	return ParseResponse(raw)
}

// ParseResponse splits raw at the first "\r\n\r\n". A status of 400 or above yields a
// *StatusError carrying the body. An unparsable status line is tolerated.
func ParseResponse(raw []byte) (*Response, error) {
	idx := bytes.Index(raw, headerEnd)
	if idx < 0 {
		return nil, ErrMalformed
	}
	head := string(raw[:idx])
	resp := &Response{Body: raw[idx+len(headerEnd):]}

	statusLine, _, _ := strings.Cut(head, "\r\n")
	parts := strings.Fields(statusLine)
	if len(parts) >= 2 {
		if status, err := strconv.ParseUint(parts[1], 10, 16); err == nil {
			resp.Status = int(status)
			resp.Reason = strings.Join(parts[2:], " ")
		}
	}
	if resp.Status >= 400 {
		return resp, &StatusError{Status: resp.Status, Body: string(resp.Body)}
	}
	return resp, nil
}

// DecodeRequest reads one request frame. It is the server half of Encode and exists for
// fake servers in tests.
func DecodeRequest(r *bufio.Reader) (*Request, error) {
	tp := textproto.NewReader(r)
	line, err := tp.ReadLine()
	if err != nil {
		return nil, err
	}
	parts := strings.Fields(line)
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "HTTP/") {
		return nil, fmt.Errorf("malformed request line: %q", line)
	}
	header, err := tp.ReadMIMEHeader()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	req := &Request{
		Method:      parts[0],
		Path:        parts[1],
		Host:        header.Get("Host"),
		ContentType: header.Get("Content-Type"),
	}
	if cl := header.Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 || n > MaxResponseSize {
			return nil, fmt.Errorf("bad Content-Length: %q", cl)
		}
		req.Body = make([]byte, n)
		if _, err := io.ReadFull(r, req.Body); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// EncodeResponse writes a response frame. Server half of Decode.
func EncodeResponse(w io.Writer, status int, reason string, contentType string, body []byte) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", status, reason)
	if contentType != "" {
		fmt.Fprintf(&buf, "Content-Type: %s\r\n", contentType)
	}
	fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(body))
	buf.WriteString("Connection: close\r\n\r\n")
	buf.Write(body)

	_, err := w.Write(buf.Bytes())
	return err
}
