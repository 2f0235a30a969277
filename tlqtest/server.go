// Package tlqtest runs a fake TLQ server on a loopback port for tests.
//
// The server speaks the same one-request-per-connection HTTP subset as a real TLQ server,
// keeps its messages in a Queue, and can be told to misbehave for the next few requests:
//
//	srv, _ := tlqtest.NewServer()
//	defer srv.Shutdown(time.Second)
//	srv.FailNext(tlqtest.Fault{Drop: true}, tlqtest.Fault{Status: 503})
//	c, _ := client.New(srv.Host(), srv.Port())
package tlqtest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"tlq-client/log"
	"tlq-client/message"
	"tlq-client/protocol"
	"tlq-client/registry"
)

// registration TTL in seconds; the etcd lease is kept alive by the registry
const registerTTL = 10

// Fault replaces the normal handling of one request.
type Fault struct {
	Delay   time.Duration // Wait before acting; cut short by Shutdown
	Drop    bool          // Close the connection without answering
	Garbage bool          // Answer with bytes that are not an HTTP response
	Status  int           // Answer with this status and Body
	Body    string
}

// Server is a fake TLQ server listening on 127.0.0.1.
type Server struct {
	listener net.Listener
	queue    *Queue
	logger   log.Logger

	connMu   sync.Mutex     // Orders wg.Add against the shutdown flag
	wg       sync.WaitGroup // In-flight connections, waited for by Shutdown
	shutdown atomic.Bool    // Set before closing the listener so Accept errors are expected
	done     chan struct{}  // Closed on Shutdown, ends fault delays
	requests atomic.Int64

	mu          sync.Mutex
	faults      []Fault
	registry    registry.Registry
	serviceName string
}

// NewServer starts a server on a free loopback port.
func NewServer() (*Server, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener: listener,
		queue:    NewQueue(),
		logger:   log.Default(),
		done:     make(chan struct{}),
	}
	go s.serve()
	return s, nil
}

// Addr is the host:port the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) Host() string {
	return s.listener.Addr().(*net.TCPAddr).IP.String()
}

func (s *Server) Port() uint16 {
	return uint16(s.listener.Addr().(*net.TCPAddr).Port)
}

// Queue is the server's message store.
func (s *Server) Queue() *Queue {
	return s.queue
}

// Requests is the number of requests read so far, faulted ones included.
func (s *Server) Requests() int {
	return int(s.requests.Load())
}

// FailNext makes the next len(faults) requests fail in the given order.
func (s *Server) FailNext(faults ...Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, faults...)
}

// Register announces the server under serviceName in reg until Shutdown.
func (s *Server) Register(ctx context.Context, reg registry.Registry, serviceName string, weight int) error {
	err := reg.Register(ctx, serviceName, registry.ServiceInstance{
		Addr:   s.Addr(),
		Weight: weight,
	}, registerTTL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.registry = reg
	s.serviceName = serviceName
	s.mu.Unlock()
	return nil
}

// Shutdown deregisters the server, stops accepting connections and waits up to timeout
// for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	// Deregister first so discovering clients stop picking this server
	s.mu.Lock()
	reg, serviceName := s.registry, s.serviceName
	s.registry = nil
	s.mu.Unlock()
	if reg != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		reg.Deregister(ctx, serviceName, s.Addr())
		cancel()
	}

	s.connMu.Lock()
	first := s.shutdown.CompareAndSwap(false, true)
	s.connMu.Unlock()
	if !first {
		return nil
	}
	close(s.done)
	s.listener.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for ongoing requests to finish")
	}
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.shutdown.Load() {
				s.logger.WithError(err).Error("tlqtest: accept failed")
			}
			return
		}
		if !s.track() {
			conn.Close()
			return
		}
		go s.handleConn(conn)
	}
}

// track counts a new connection unless shutdown has started, so no wg.Add can follow
// Shutdown's wg.Wait.
func (s *Server) track() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.wg.Add(1)
	return true
}

// handleConn answers exactly one request and closes the connection.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	req, err := protocol.DecodeRequest(bufio.NewReader(conn))
	if err != nil {
		s.logger.WithError(err).Debug("tlqtest: bad request")
		s.reply(conn, http.StatusBadRequest, err.Error())
		return
	}
	s.requests.Add(1)

	if fault, ok := s.nextFault(); ok {
		s.fail(conn, fault)
		return
	}
	status, body := s.route(req)
	s.replyJSON(conn, status, body)
}

func (s *Server) nextFault() (Fault, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.faults) == 0 {
		return Fault{}, false
	}
	f := s.faults[0]
	s.faults = s.faults[1:]
	return f, true
}

func (s *Server) fail(conn net.Conn, f Fault) {
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-s.done:
			return
		}
	}
	switch {
	case f.Drop:
	case f.Garbage:
		conn.Write([]byte("garbage"))
	case f.Status != 0:
		s.reply(conn, f.Status, f.Body)
	default:
		s.replyJSON(conn, http.StatusOK, "Success")
	}
}

// route runs one request against the queue and returns the status and the value to send
// as JSON, or the plain text error for a status of 400 and above.
func (s *Server) route(req *protocol.Request) (int, any) {
	if req.Path == "/hello" {
		if req.Method != protocol.MethodGet {
			return http.StatusMethodNotAllowed, "Method Not Allowed"
		}
		return http.StatusOK, "Hello World"
	}

	switch req.Path {
	case "/add", "/get", "/delete", "/retry", "/purge":
	default:
		return http.StatusNotFound, "Not Found"
	}
	if req.Method != protocol.MethodPost {
		return http.StatusMethodNotAllowed, "Method Not Allowed"
	}

	switch req.Path {
	case "/add":
		var body message.AddMessageRequest
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return http.StatusBadRequest, err.Error()
		}
		if len(body.Body) > message.MaxMessageSize {
			return http.StatusRequestEntityTooLarge, "message too large"
		}
		return http.StatusOK, s.queue.Add(body.Body)
	case "/get":
		var body message.GetMessagesRequest
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return http.StatusBadRequest, err.Error()
		}
		return http.StatusOK, s.queue.Get(int(body.Count))
	case "/delete":
		var body message.DeleteMessagesRequest
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return http.StatusBadRequest, err.Error()
		}
		s.queue.Delete(body.IDs)
		return http.StatusOK, "Success"
	case "/retry":
		var body message.RetryMessagesRequest
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return http.StatusBadRequest, err.Error()
		}
		s.queue.Retry(body.IDs)
		return http.StatusOK, "Success"
	default: // "/purge"
		return http.StatusOK, s.queue.Purge()
	}
}

func (s *Server) replyJSON(conn net.Conn, status int, v any) {
	if status >= 400 {
		s.reply(conn, status, fmt.Sprint(v))
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		s.reply(conn, http.StatusInternalServerError, err.Error())
		return
	}
	if err := protocol.EncodeResponse(conn, status, http.StatusText(status), "application/json", body); err != nil {
		s.logger.WithError(err).Debug("tlqtest: write failed")
	}
}

func (s *Server) reply(conn net.Conn, status int, text string) {
	reason := http.StatusText(status)
	if reason == "" {
		reason = "Status " + strconv.Itoa(status)
	}
	if err := protocol.EncodeResponse(conn, status, reason, "text/plain", []byte(text)); err != nil {
		s.logger.WithError(err).Debug("tlqtest: write failed")
	}
}
