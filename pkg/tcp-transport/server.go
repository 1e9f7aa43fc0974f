// Package tcptransport serves a svcrouter.Handler on a bare TCP listener,
// one request per connection.
package tcptransport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/always-cache/svcrouter"
)

// DefaultConnTimeout bounds reading the request and writing the response
// when Server.ConnTimeout is zero.
const DefaultConnTimeout = 10 * time.Second

// maxRequestBytes bounds how much of a request is read, headers included.
const maxRequestBytes = 64 << 10

// lingerTimeout bounds draining unread input after an error response.
const lingerTimeout = 500 * time.Millisecond

// Server answers one request per TCP connection with the minimal HTTP/1.1
// wire format of svcrouter.Response, then closes the connection.
type Server struct {
	// TCP address to listen on, e.g. ":7878".
	Addr    string
	Handler svcrouter.Handler
	// Logger to use. The console logger is used if nil.
	Logger *zerolog.Logger
	// Deadline for a connection, from accept to the written response.
	ConnTimeout time.Duration
}

// ListenAndServe listens on Addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes ln
// and waits for the open connections to be answered.
// It returns nil after a shutdown through ctx.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logger := s.logger()
	timeout := s.ConnTimeout
	if timeout <= 0 {
		timeout = DefaultConnTimeout
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-stop:
		}
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				logger.Warn().Err(err).Msg("Accept failed")
				continue
			}
			ln.Close()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(ctx, conn, timeout, logger)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn, timeout time.Duration, logger zerolog.Logger) {
	defer conn.Close()
	logger = logger.With().Str("remote", conn.RemoteAddr().String()).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Request handling panicked")
		}
	}()

	conn.SetDeadline(time.Now().Add(timeout))
	reader := bufio.NewReader(io.LimitReader(conn, maxRequestBytes))

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		logger.Trace().Err(err).Msg("Connection closed before request")
		return
	}
	if err != nil {
		// the line ended before its newline: cut off by the size limit or by the client
		status := http.StatusBadRequest
		if len(line) >= maxRequestBytes {
			status = http.StatusRequestURITooLong
		}
		logger.Debug().Err(err).Int("bytes", len(line)).Msg("Incomplete request line")
		rejectRequest(conn, status)
		return
	}
	discardHeaders(reader)

	req, err := svcrouter.ParseRequestLine(line)
	if err != nil {
		logger.Debug().Err(err).Msg("Malformed request")
		rejectRequest(conn, http.StatusBadRequest)
		return
	}

	// requests accepted before shutdown are still answered
	start := time.Now()
	res := s.Handler.Route(context.WithoutCancel(ctx), req.Method, req.Path)
	if _, err := res.WriteTo(conn); err != nil {
		logger.Debug().Err(err).Msg("Could not write response")
		return
	}
	logger.Info().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", res.StatusCode).
		Int("size", len(res.Body)).
		Dur("duration", time.Since(start)).
		Msg("Request")
}

// rejectRequest answers with an error status, then drains what the client
// is still sending so closing the connection does not reset it before the
// response is read.
func rejectRequest(conn net.Conn, status int) {
	res := svcrouter.Response{StatusCode: status, Body: http.StatusText(status)}
	if _, err := res.WriteTo(conn); err != nil {
		return
	}
	conn.SetReadDeadline(time.Now().Add(lingerTimeout))
	io.Copy(io.Discard, io.LimitReader(conn, maxRequestBytes))
}

// discardHeaders reads the already received header lines up to the blank line ending them.
// A client that sent the request line alone is not waited for.
func discardHeaders(reader *bufio.Reader) {
	for reader.Buffered() > 0 {
		line, err := reader.ReadString('\n')
		if err != nil || strings.TrimRight(line, "\r\n") == "" {
			return
		}
	}
}

func (s *Server) logger() zerolog.Logger {
	var logger zerolog.Logger
	if s.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *s.Logger
	}
	return logger.With().Str("component", "tcp").Logger()
}
