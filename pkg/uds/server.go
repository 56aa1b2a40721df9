package uds

import (
	"errors"
	"net"
	"os"
	"sync"

	"hftcore/pkg/exception"
)

var (
	// ErrNilServer is returned when a nil server receiver is used.
	ErrNilServer = errors.New("uds: nil server")

	// ErrAlreadyListening is returned when Listen is called twice.
	ErrAlreadyListening = errors.New("uds: already listening")

	// ErrNotListening is returned when Serve is called before Listen.
	ErrNotListening = errors.New("uds: not listening")

	// ErrPathNotSocket is returned when the existing path is not a socket.
	ErrPathNotSocket = errors.New("uds: path exists and is not a socket")
)

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithFileMode sets the permissions of the socket file after Listen.
func WithFileMode(mode os.FileMode) ServerOption {
	return func(s *Server) {
		s.mode = mode
	}
}

// WithConnBuffer sizes the kernel read and write buffers of every accepted
// connection.
func WithConnBuffer(size int) ServerOption {
	return func(s *Server) {
		s.buffer = size
	}
}

// Server accepts Unix domain socket connections and hands each one to a
// handler goroutine.
type Server struct {
	path   string
	mode   os.FileMode
	buffer int

	mu sync.Mutex
	ln *net.UnixListener
	wg sync.WaitGroup
}

// NewServer creates a server for the socket path.
func NewServer(path string, opts ...ServerOption) (*Server, error) {
	if path == "" {
		return nil, exception.ErrEmptyPathUDS
	}
	s := &Server{path: path}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the socket path.
func (s *Server) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Listen binds the socket, replacing a stale socket file left by a previous
// process.
func (s *Server) Listen() error {
	if s == nil {
		return ErrNilServer
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return ErrAlreadyListening
	}
	if err := RemoveIfExists(s.path); err != nil {
		return err
	}

	ln, err := net.ListenUnix(unixNetwork, &net.UnixAddr{Name: s.path, Net: unixNetwork})
	if err != nil {
		return err
	}
	ln.SetUnlinkOnClose(true)
	if s.mode != 0 {
		if err := os.Chmod(s.path, s.mode); err != nil {
			_ = ln.Close()
			return err
		}
	}
	s.ln = ln
	return nil
}

// Serve accepts connections until Close and runs handle for each one on its
// own goroutine. It returns nil once the listener is closed.
func (s *Server) Serve(handle func(*net.UnixConn)) error {
	if s == nil {
		return ErrNilServer
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	for {
		conn, err := ln.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if s.buffer > 0 {
			_ = conn.SetReadBuffer(s.buffer)
			_ = conn.SetWriteBuffer(s.buffer)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			handle(conn)
		}()
	}
}

// Close stops accepting. Handlers keep running until their connections end;
// Wait joins them.
func (s *Server) Close() error {
	if s == nil {
		return ErrNilServer
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	s.ln = nil
	return err
}

// Wait blocks until every handler returned.
func (s *Server) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

// RemoveIfExists deletes a socket file at path. Any other kind of file is
// left alone and reported.
func RemoveIfExists(path string) error {
	if path == "" {
		return exception.ErrEmptyPathUDS
	}
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return ErrPathNotSocket
	}
	return os.Remove(path)
}
