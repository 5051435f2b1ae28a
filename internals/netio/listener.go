// Package netio is the connection boundary: it owns the TCP listener,
// accepts connections, and wires each one to a fresh subscriber
// manager. It is the only package that knows sockets exist.
package netio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"zaichik/internals/logging"
	"zaichik/internals/protocol"
	"zaichik/internals/subscriber"
	"zaichik/interfaces"
)

// Server accepts connections on a single listener and runs one
// subscription manager per connection until ctx is canceled.
type Server struct {
	registry interfaces.Registry
	log      *logrus.Logger
	now      func() time.Time
}

// New builds a server bound to reg. now is threaded down to every
// connection's filters so tests can substitute a fake clock; in
// production zaichikd passes time.Now.
func New(reg interfaces.Registry, log *logrus.Logger, now func() time.Time) *Server {
	return &Server{registry: reg, log: log, now: now}
}

// Serve accepts connections on ln until ctx is canceled (it then
// returns nil) or Accept fails (it then returns the error). It returns
// as soon as the accept loop stops and does not wait for in-flight
// connections; each one is torn down by its own goroutine once ctx is
// canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("netio: accept failed: %w", err)
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	connID := uuid.NewString()
	log := logging.ForConn(s.log, connID)
	defer conn.Close()

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("netio: recovered panic in connection handler")
		}
	}()

	log.Info("netio: connection accepted")
	defer log.Info("netio: connection closed")

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	dec := protocol.NewDecoder(conn)
	enc := protocol.NewEncoder(conn)

	mgr := subscriber.New(connID, s.registry, enc, log, s.now)

	commands := make(chan protocol.Frame)
	readErrs := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("netio: recovered panic in read loop")
			}
		}()
		defer close(commands)
		for {
			f, err := dec.ReadFrame()
			if err != nil {
				readErrs <- err
				return
			}
			select {
			case commands <- f:
			case <-connCtx.Done():
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("netio: recovered panic in subscription manager")
			}
		}()
		mgr.Run(connCtx, commands)
	}()

	var readErr error
	select {
	case readErr = <-readErrs:
	case <-done:
	case <-ctx.Done():
	}

	// The manager is the connection's sole writer. It must have fully
	// returned — and so stopped touching enc — before the accept
	// goroutine writes a ProtocolError frame of its own.
	cancel()
	<-done

	if pf, ok := asProtocolError(readErr); ok {
		_ = enc.WriteFrame(pf)
		_ = enc.Flush()
	} else if readErr != nil {
		log.WithError(readErr).Debug("netio: read loop ended")
	}
}

// asProtocolError turns a decode failure other than a clean EOF into
// the wire-level ProtocolError the client is supposed to see right
// before the connection drops.
func asProtocolError(err error) (protocol.ProtocolErrorFrame, bool) {
	if err == nil {
		return protocol.ProtocolErrorFrame{}, false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return protocol.ProtocolErrorFrame{}, false
	}
	return protocol.ProtocolErrorFrame{Code: 1, Text: err.Error()}, true
}
