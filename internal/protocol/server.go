package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/mpeeters/tasknest/internal/domain/task"
)

// Devices scan this port range looking for a desktop to sync with.
const (
	portRangeStart = 4096
	portRangeEnd   = 8191
)

// ErrNoPort is returned by Listen when every port in the scan range is
// taken.
var ErrNoPort = errors.New("protocol: no free port in 4096-8191")

// SessionRecorder persists the outcome of sync sessions. Implemented by
// the store; nil disables recording.
type SessionRecorder interface {
	RecordSession(deviceName string, version int, outcome string, when time.Time) error
}

// SerialRunner executes functions one at a time on a single goroutine.
// The domain objects are not safe for concurrent use; every connection
// funnels its document access through the runner.
type SerialRunner struct {
	ops chan func()
	wg  sync.WaitGroup
}

// NewSerialRunner starts the runner goroutine.
func NewSerialRunner() *SerialRunner {
	r := &SerialRunner{ops: make(chan func())}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for op := range r.ops {
			op()
		}
	}()
	return r
}

// Do runs fn on the runner goroutine and waits for it to return.
func (r *SerialRunner) Do(fn func()) {
	done := make(chan struct{})
	r.ops <- func() {
		defer close(done)
		fn()
	}
	<-done
}

// Close stops the runner after draining queued work.
func (r *SerialRunner) Close() {
	close(r.ops)
	r.wg.Wait()
}

// Acceptor listens for device connections and runs a session per
// connection. All sessions share one SerialRunner, so device-driven
// document mutations never interleave.
type Acceptor struct {
	listener net.Listener
	port     int
	doc      *task.Document
	cfg      Config
	runner   *SerialRunner
	recorder SessionRecorder

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Listen binds the first free port in the scan range and returns the
// acceptor. Serve must be called to start accepting.
func Listen(doc *task.Document, cfg Config, runner *SerialRunner, recorder SessionRecorder) (*Acceptor, error) {
	for port := portRangeStart; port <= portRangeEnd; port++ {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			continue
		}
		glog.Infof("sync: listening on port %d", port)
		return &Acceptor{
			listener: listener,
			port:     port,
			doc:      doc,
			cfg:      cfg,
			runner:   runner,
			recorder: recorder,
		}, nil
	}
	return nil, ErrNoPort
}

// Port returns the bound port.
func (a *Acceptor) Port() int { return a.port }

// Serve accepts connections until Close is called. It returns the error
// that stopped the accept loop, nil on a clean shutdown.
func (a *Acceptor) Serve() error {
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			a.mu.Lock()
			closed := a.closed
			a.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("accepting device connection: %w", err)
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.handle(conn)
		}()
	}
}

// Close stops accepting and waits for running sessions to drain.
func (a *Acceptor) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	err := a.listener.Close()
	a.wg.Wait()
	return err
}

func (a *Acceptor) handle(conn net.Conn) {
	defer conn.Close()

	if a.cfg.Secret == "" {
		glog.Warningf("sync: rejecting %s, no sync password configured", conn.RemoteAddr())
		return
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			glog.Warningf("sync: disabling Nagle for %s: %v", conn.RemoteAddr(), err)
		}
	}
	glog.V(1).Infof("sync: connection from %s", conn.RemoteAddr())

	var session *Session
	var err error
	a.runner.Do(func() {
		session, err = NewSession(conn, a.doc, a.cfg)
	})
	if err != nil {
		glog.Errorf("sync: starting session for %s: %v", conn.RemoteAddr(), err)
		return
	}

	outcome := "completed"
	buf := make([]byte, 4096)
	for {
		n, readErr := conn.Read(buf)
		if n > 0 {
			var recvErr error
			a.runner.Do(func() {
				recvErr = session.Receive(buf[:n])
			})
			if recvErr != nil {
				glog.Errorf("sync: session with %s: %v", conn.RemoteAddr(), recvErr)
				outcome = "protocol error"
				break
			}
			if session.Done() {
				break
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				glog.Warningf("sync: reading from %s: %v", conn.RemoteAddr(), readErr)
			}
			outcome = "interrupted"
			break
		}
	}

	a.runner.Do(func() {
		if !session.Done() {
			session.HandleClose()
		}
	})
	if a.recorder != nil {
		if err := a.recorder.RecordSession(session.DeviceName(), session.version, outcome, time.Now()); err != nil {
			glog.Errorf("sync: recording session: %v", err)
		}
	}
	glog.V(1).Infof("sync: connection from %s closed (%s)", conn.RemoteAddr(), outcome)
}
