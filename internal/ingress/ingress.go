// ABOUTME: Minimal TCP webhook ingress: accept, one bounded read, parse, ack, close
// ABOUTME: Always answers 200 OK; malformed traffic fails closed to "no routing"

package ingress

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultBufferSize bounds the single read performed per connection.
// Payloads larger than this are truncated, which makes the JSON body
// unparseable downstream; the router then drops the event. This is a
// documented capacity limit, not an error path.
const DefaultBufferSize = 4096

// requestLine matches the only request that triggers routing. Anything
// else is still acknowledged but produces no action, so unmatched
// paths are indistinguishable from matched ones to a prober.
var requestLine = regexp.MustCompile(`(?m)^POST /webhook HTTP/.*$`)

// ack is the unconditional response: the remote platform only needs to
// know delivery was attempted. Content-Length matches the "OK" body.
const ack = "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nContent-Length: 2\r\n\r\nOK"

// RouteFunc receives the extracted POST body. Implementations must
// return normally; the ingress does not recover panics.
type RouteFunc func(ctx context.Context, body []byte)

// Ingress owns the webhook listening socket. It deliberately does not
// implement general HTTP, TLS, or webhook signature verification: it
// parses just enough of a request to extract the JSON body and always
// acknowledges with 200.
type Ingress struct {
	addr        string
	readTimeout time.Duration
	bufSize     int
	route       RouteFunc
	logger      *slog.Logger

	mu      sync.Mutex
	ln      net.Listener
	serving bool
}

// New creates an Ingress bound later via Bind. addr should be a
// loopback address; public exposure is expected to go through a
// reverse proxy.
func New(addr string, readTimeout time.Duration, route RouteFunc, logger *slog.Logger) *Ingress {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingress{
		addr:        addr,
		readTimeout: readTimeout,
		bufSize:     DefaultBufferSize,
		route:       route,
		logger:      logger.With("component", "ingress"),
	}
}

// Bind creates the listening socket. It is idempotent: a second call
// while bound is a no-op, so repeated startup never double-binds or
// leaks the previous socket.
func (i *Ingress) Bind() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.ln != nil {
		i.logger.Debug("listener already bound", "addr", i.ln.Addr().String())
		return nil
	}
	ln, err := net.Listen("tcp", i.addr)
	if err != nil {
		return err
	}
	i.ln = ln
	i.logger.Info("webhook listener bound", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or nil before Bind.
func (i *Ingress) Addr() net.Addr {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.ln == nil {
		return nil
	}
	return i.ln.Addr()
}

// Start registers the accept loop with the process. It is idempotent:
// only the first call after a Bind spawns the loop.
func (i *Ingress) Start(ctx context.Context) {
	i.mu.Lock()
	if i.serving || i.ln == nil {
		i.mu.Unlock()
		return
	}
	i.serving = true
	ln := i.ln
	i.mu.Unlock()

	go i.acceptLoop(ctx, ln)
}

// acceptLoop accepts one connection at a time and handles it inline,
// preserving the single-dispatcher ordering guarantee: events are
// processed in the order their reads complete.
func (i *Ingress) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed during shutdown, or fatal accept error.
			// serving is only cleared while this loop's listener is
			// still the current one: Close may already have cleared it
			// and a rebound listener may already have its own loop.
			i.mu.Lock()
			if i.ln == ln {
				i.serving = false
			}
			i.mu.Unlock()
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				i.logger.Error("accept failed", "error", err)
			}
			return
		}
		i.handleConn(ctx, conn)
	}
}

// handleConn performs the bounded read, minimal parse, optional
// routing, and unconditional acknowledgment for one connection.
func (i *Ingress) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// The read deadline bounds the worst-case stall when a client
	// opens a connection and sends nothing or only part of a request.
	deadline := time.Now().Add(i.readTimeout)
	_ = conn.SetDeadline(deadline)

	buf := make([]byte, i.bufSize)
	n, err := conn.Read(buf)
	if err != nil && n == 0 && !errors.Is(err, io.EOF) {
		// Nothing arrived before the deadline (or the peer reset).
		// The connection is abandoned without a reply.
		i.logger.Debug("abandoning connection without data", "error", err)
		return
	}

	data := normalize(buf[:n])
	if requestLine.MatchString(data) {
		if body := extractBody(data); body != "" {
			i.route(ctx, []byte(body))
		}
	}

	if _, err := conn.Write([]byte(ack)); err != nil {
		i.logger.Debug("ack write failed", "error", err)
	}
}

// Close shuts the listening socket. Safe to call multiple times and
// before Bind.
func (i *Ingress) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.ln == nil {
		return nil
	}
	err := i.ln.Close()
	i.ln = nil
	i.serving = false
	return err
}

// normalize converts CRLF line endings to LF so header/body splitting
// only deals with one form.
func normalize(raw []byte) string {
	return strings.ReplaceAll(string(raw), "\r\n", "\n")
}

// extractBody returns everything after the first empty line,
// right-trimmed. A request without an empty line yields "", which the
// caller treats as "no body": malformed requests fail closed.
func extractBody(data string) string {
	_, body, found := strings.Cut(data, "\n\n")
	if !found {
		return ""
	}
	return strings.TrimRight(body, " \t\r\n")
}
