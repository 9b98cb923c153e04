/*
Copyright © 2025 dyncheckd contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
// Package transport implements the length-framed socket transport (§6):
// stdio, TCP, and WebSocket listeners that each decode one framed message
// into a Request, hand it to the Dispatcher, and write back one framed
// response. Framing and connection lifecycle live here; request/response
// shape and semantics stay entirely in package server.
package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/gorilla/websocket"

	"dyncheckd.dev/server/cmd/config"
	"dyncheckd.dev/server/internal/logging"
	"dyncheckd.dev/server/server"
)

// maxFrameBytes guards against a corrupt or hostile length prefix asking
// for an unbounded allocation.
const maxFrameBytes = 64 * 1024 * 1024

// Server wraps a *server.ServerState with the listener its configured
// TransportConfig selects.
type Server struct {
	state *server.ServerState
	kind  config.TransportKind
	addr  string

	listener net.Listener

	// dispatchMu serializes every call into the Dispatcher, across every
	// connection and the file watcher alike: §5 requires the Dispatcher
	// be single-threaded, one request at a time per server, regardless of
	// how many connections or event sources feed it.
	dispatchMu sync.Mutex
}

// Dispatch runs req through the Dispatcher under the transport's
// serialization lock. Both the connection-handling loops below and an
// external feed (e.g. a file watcher synthesizing TypeCheckRequests) must
// call this instead of ServerState.Process directly.
func (s *Server) Dispatch(req server.Request) (server.Response, error) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	return s.state.Process(req)
}

// New builds a Server for the transport kind and address in cfg.
func New(state *server.ServerState) *Server {
	return &Server{
		state: state,
		kind:  state.Config.Transport.Kind,
		addr:  state.Config.Transport.Address,
	}
}

// Run starts serving using the configured transport and blocks until a
// StopRequest is processed or the listener fails.
func (s *Server) Run() error {
	logging.Debug("transport: running with kind %s", s.kind)
	switch s.kind {
	case config.TransportStdio, "":
		return s.runStdio()
	case config.TransportTCP:
		return s.runListener("tcp")
	case config.TransportWebSocket:
		return s.runWebSocket()
	default:
		return fmt.Errorf("unsupported transport kind: %s", s.kind)
	}
}

// Close tears down the listening socket, if any. Stdio has nothing to close.
func (s *Server) Close() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// runStdio serves a single implicit ClientPersistent connection framed
// over stdin/stdout, the default for editor-spawned processes.
func (s *Server) runStdio() error {
	s.state.AddPersistentClient(server.ClientPersistent)
	_, err := s.serveConn(os.Stdin, os.Stdout)
	return err
}

// runListener accepts length-framed connections on addr, one goroutine per
// connection, each registered as a ClientPersistent client while it is open.
func (s *Server) runListener(network string) error {
	ln, err := net.Listen(network, s.addr)
	if err != nil {
		return fmt.Errorf("listen %s %s: %w", network, s.addr, err)
	}
	s.listener = ln
	logging.Info("transport: listening on %s %s", network, s.addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if isClosedErr(err) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.state.AddPersistentClient(server.ClientPersistent)
		go func() {
			defer conn.Close()
			defer s.state.RemovePersistentClient(server.ClientPersistent)
			stop, err := s.serveConn(conn, conn)
			if err != nil && !isClosedErr(err) {
				logging.Warning("transport: connection error: %v", err)
			}
			if stop {
				// §4.1/§6: a StopRequest's server-stop routine tears down
				// the main socket under the same dispatch lock, not just
				// this one connection, so no further connects succeed.
				s.dispatchMu.Lock()
				defer s.dispatchMu.Unlock()
				s.Close()
			}
		}()
	}
}

// runWebSocket accepts WebSocket upgrades on addr and frames each binary
// message as one request/response pair, matching the length-framed
// semantics of the other transports at the message boundary instead of
// the byte-stream one.
func (s *Server) runWebSocket() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen websocket %s: %w", s.addr, err)
	}
	s.listener = ln
	logging.Info("transport: listening for websocket on %s", s.addr)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warning("transport: websocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		s.state.AddPersistentClient(server.ClientPersistent)
		stop := s.serveWebSocket(conn)
		s.state.RemovePersistentClient(server.ClientPersistent)
		if stop {
			// §4.1/§6: tear down the listener under the dispatch lock so
			// no further connects succeed, matching the tcp transport.
			s.dispatchMu.Lock()
			defer s.dispatchMu.Unlock()
			s.Close()
		}
	})

	httpServer := &http.Server{Handler: mux}
	err = httpServer.Serve(ln)
	if isClosedErr(err) {
		return nil
	}
	return err
}

// serveWebSocket returns whether the connection ended on a StopRequest.
func (s *Server) serveWebSocket(conn *websocket.Conn) bool {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return false
		}
		if kind != websocket.BinaryMessage && kind != websocket.TextMessage {
			continue
		}
		reply, stop, err := s.handleFrame(data)
		if err != nil {
			logging.Warning("transport: request handling failed: %v", err)
			continue
		}
		if reply != nil {
			if err := conn.WriteMessage(websocket.BinaryMessage, reply); err != nil {
				return false
			}
		}
		if stop {
			return true
		}
	}
}

// serveConn runs the length-framed read/dispatch/write loop over one
// byte-stream connection until EOF, a write failure, or a StopRequest.
// The returned bool reports whether the loop ended because it processed a
// StopRequest, so the caller can tear down the listener, not just this
// connection.
func (s *Server) serveConn(r io.Reader, w io.Writer) (bool, error) {
	reader := bufio.NewReader(r)
	for {
		body, err := readFrame(reader)
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		reply, stop, err := s.handleFrame(body)
		if err != nil {
			logging.Warning("transport: request handling failed: %v", err)
			continue
		}
		if reply != nil {
			if err := writeFrame(w, reply); err != nil {
				return false, err
			}
		}
		if stop {
			return true, nil
		}
	}
}

// handleFrame decodes one message body into a Request, runs it through the
// Dispatcher, and encodes the Response. stop reports whether this was a
// StopRequest, whose response must be written before the caller tears down
// its listener.
func (s *Server) handleFrame(body []byte) (reply []byte, stop bool, err error) {
	req, err := server.DecodeRequest(body)
	if err != nil {
		return nil, false, fmt.Errorf("decode request: %w", err)
	}

	resp, err := s.Dispatch(req)
	if err != nil {
		return nil, false, fmt.Errorf("process request: %w", err)
	}
	if resp == nil {
		return nil, false, nil
	}

	_, stop = resp.(server.StopResponse)
	reply, err = server.EncodeResponse(resp)
	if err != nil {
		return nil, stop, fmt.Errorf("encode response: %w", err)
	}
	return reply, stop, nil
}

// readFrame reads one length-prefixed message: a big-endian uint32 byte
// count followed by that many body bytes.
func readFrame(r *bufio.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length > maxFrameBytes {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit %d", length, maxFrameBytes)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// writeFrame writes one length-prefixed message body.
func writeFrame(w io.Writer, body []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed)
}
