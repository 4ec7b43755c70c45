// Package protocol implements the client side of the management server
// monitoring sockets.
//
// A Protocol owns one websocket connection. The connection is served by a
// background task group: one task sends the request and then keeps the
// connection alive until closing, while the caller pulls frames in order with
// Receive. Close always tears down both the socket and the task group.
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ridge/must/v2"
	"github.com/ridge/parallel"
	"github.com/ridge/smcmon/session"
	"github.com/ridge/smcmon/tlog"
	"github.com/ridge/smcmon/tnet"
	"github.com/ridge/smcmon/tws"
	"github.com/ridge/smcmon/wire"
	"go.uber.org/zap"
)

const gracefulCloseTimeout = 2 * time.Second

var (
	// ErrSessionNotFound is returned before any I/O when there is no
	// established session
	ErrSessionNotFound = errors.New("no established session, log in first")

	// ErrFetchAborted is matched by errors.Is for every fetch the server
	// rejected
	ErrFetchAborted = errors.New("fetch aborted")

	// ErrIdleTimeout is returned when no frame arrives within the idle
	// timeout
	ErrIdleTimeout = errors.New("no frames received within idle timeout")
)

// InvalidFetch is a failure reported by the server, e.g. a malformed filter
// or an unknown definition.
//
// errors.Is(err, ErrFetchAborted) holds for every InvalidFetch.
type InvalidFetch struct {
	Reason string
}

func (e *InvalidFetch) Error() string {
	return fmt.Sprintf("%s: %s", ErrFetchAborted, e.Reason)
}

// Is makes InvalidFetch match ErrFetchAborted
func (e *InvalidFetch) Is(target error) bool {
	return target == ErrFetchAborted
}

// Options tune a monitoring socket
type Options struct {
	// How often a waiting Receive reports that it is still waiting
	SocketTimeout time.Duration

	// Fail Receive if no frame arrives for this long. 0 waits forever, which
	// is what live streams need.
	IdleTimeout time.Duration

	// WebSocket settings. TLSClientConfig is taken from the session.
	Config tws.Config
}

// DefaultOptions is the default Options value
var DefaultOptions = Options{
	SocketTimeout: 3 * time.Second,
	Config:        tws.StreamerConfig,
}

// LogOptions is the recommended Options value for log queries
var LogOptions = func() Options {
	opts := DefaultOptions
	opts.SocketTimeout = time.Second
	return opts
}()

type inbound struct {
	msg wire.Message
	err error
}

// Protocol is a single monitoring socket. It is not reused across queries.
type Protocol struct {
	opts    Options
	request any
	logger  *zap.Logger
	group   *parallel.Group
	state   atomic.Int32

	frames   chan inbound
	outbox   chan tws.Message
	closing  chan struct{}
	finished chan struct{} // socket task returned
	done     chan struct{} // Close completed

	abortOnce sync.Once
	aborted   chan struct{}
	closeOnce sync.Once
	waitOnce  sync.Once
	waitErr   error

	mu      sync.Mutex
	fetchID json.RawMessage

	ended bool // accessed by the receiving goroutine only
}

// Open connects to the monitoring socket at location and starts the
// background session, which sends the request exactly once before any frame
// can be received. Connection failures worth retrying are wrapped with
// retry.Retriable.
//
// The caller must call Close.
func Open(ctx context.Context, sess *session.Session, location string, request any, opts Options) (*Protocol, error) {
	if !sess.Established() {
		return nil, ErrSessionNotFound
	}
	if opts.SocketTimeout <= 0 {
		opts.SocketTimeout = DefaultOptions.SocketTimeout
	}

	url := sess.WebSocketURL() + location
	ctx = tlog.With(ctx, zap.String("url", url))
	logger := tlog.Get(ctx)

	p := &Protocol{
		opts:     opts,
		request:  request,
		logger:   logger,
		frames:   make(chan inbound),
		outbox:   make(chan tws.Message),
		closing:  make(chan struct{}),
		finished: make(chan struct{}),
		done:     make(chan struct{}),
		aborted:  make(chan struct{}),
	}
	p.state.Store(int32(StateConnecting))

	tlsConfig, err := sess.TLSConfig()
	if err != nil {
		p.state.Store(int32(StateClosed))
		return nil, err
	}
	config := opts.Config
	config.TLSClientConfig = tlsConfig

	logger.Debug("Connecting to monitoring socket")
	ws, err := tws.Connect(ctx, url, sess.Header(), config)
	if err != nil {
		p.state.Store(int32(StateClosed))
		sessionsTotal.WithLabelValues("failed").Inc()
		return nil, tnet.MaybeRetriableError(fmt.Errorf("failed to connect to %s: %w", location, err))
	}
	sessionsTotal.WithLabelValues("opened").Inc()
	openSessions.Inc()

	p.group = parallel.NewGroup(ctx)
	p.group.Spawn("socket", parallel.Exit, func(ctx context.Context) error {
		defer close(p.finished)
		return tws.Handle(ctx, ws, config, p.session)
	})
	p.state.Store(int32(StateOpen))
	logger.Info("Monitoring socket opened", zap.String("location", location))
	return p, nil
}

// Run opens a monitoring socket, calls fn and closes the socket on every
// exit path. The error of fn is returned unchanged.
func Run(ctx context.Context, sess *session.Session, location string, request any, opts Options, fn func(p *Protocol) error) error {
	p, err := Open(ctx, sess, location, request, opts)
	if err != nil {
		return err
	}
	defer p.Close()
	return fn(p)
}

// session is the background half of the protocol: it transmits the request,
// forwards extra client messages, hands decoded frames to Receive and, when
// closing, asks the server to abort the running fetch
func (p *Protocol) session(ctx context.Context, incoming <-chan tws.Message, outgoing chan<- tws.Message) error {
	defer close(p.frames)

	if r, ok := p.request.(wire.Request); ok {
		p.logger.Debug("Sending request", zap.Object("request", r))
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closing:
		return nil
	case outgoing <- tws.Message{Data: must.OK1(json.Marshal(p.request))}:
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.closing:
			return p.sendAbort(ctx, outgoing)
		case msg := <-p.outbox:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case outgoing <- msg:
			}
		case msg, ok := <-incoming:
			if !ok {
				p.logger.Debug("Monitoring socket closed by server")
				return nil
			}
			var in inbound
			if err := json.Unmarshal(msg.Data, &in.msg); err != nil {
				in.err = fmt.Errorf("failed to parse incoming WS message: %w", err)
			} else if in.msg.HasFetch() {
				p.mu.Lock()
				p.fetchID = in.msg.Fetch
				p.mu.Unlock()
			}
			// Extra client messages keep flowing while the frame waits for
			// Receive: callers send subscriptions before receiving.
			for delivered := false; !delivered; {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-p.closing:
					return p.sendAbort(ctx, outgoing)
				case out := <-p.outbox:
					select {
					case <-ctx.Done():
						return ctx.Err()
					case outgoing <- out:
					}
				case p.frames <- in:
					delivered = true
				}
			}
			if in.err != nil {
				return in.err
			}
		}
	}
}

func (p *Protocol) sendAbort(ctx context.Context, outgoing chan<- tws.Message) error {
	id := p.FetchID()
	if id == nil {
		return nil
	}
	p.logger.Debug("Aborting fetch", zap.String("fetch", wire.Text(id)))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case outgoing <- tws.Message{Data: must.OK1(json.Marshal(wire.Abort{Abort: id}))}:
		return nil
	}
}

// Send queues an extra client message, sent after the request
func (p *Protocol) Send(ctx context.Context, v any) error {
	msg := tws.Message{Data: must.OK1(json.Marshal(v))}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closing:
		return errors.New("monitoring socket is closing")
	case <-p.finished:
		return errors.New("monitoring socket is closed")
	case p.outbox <- msg:
		return nil
	}
}

// Receive returns the next step of the stream.
//
// Frames are returned in arrival order. A failure frame ends the stream with
// a Failed step carrying *InvalidFetch. An end frame is returned as a Frame
// step, and the next call returns Done. After Abort, Receive returns Aborted.
func (p *Protocol) Receive(ctx context.Context) Step {
	if p.ended {
		return Step{Kind: Done}
	}
	select {
	case <-p.aborted:
		return Step{Kind: Aborted}
	default:
	}
	p.state.CompareAndSwap(int32(StateOpen), int32(StateReceiving))

	ticker := time.NewTicker(p.opts.SocketTimeout)
	defer ticker.Stop()

	var idle <-chan time.Time
	if p.opts.IdleTimeout > 0 {
		timer := time.NewTimer(p.opts.IdleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	started := time.Now()
	for {
		select {
		case <-ctx.Done():
			return p.failed(ctx.Err())
		case <-p.aborted:
			return Step{Kind: Aborted}
		case <-idle:
			return p.failed(ErrIdleTimeout)
		case <-ticker.C:
			p.logger.Debug("Waiting for frames", zap.Duration("waited", time.Since(started)))
		case in, ok := <-p.frames:
			if !ok {
				return p.closedStep()
			}
			if in.err != nil {
				return p.failed(in.err)
			}
			return p.dispatch(in.msg)
		}
	}
}

func (p *Protocol) dispatch(msg wire.Message) Step {
	p.logger.Debug("Frame received", zap.Object("frame", msg))

	if msg.HasFailure() {
		framesTotal.WithLabelValues("failure").Inc()
		step := p.failed(&InvalidFetch{Reason: msg.FailureReason()})
		step.Message = msg
		return step
	}
	if msg.Records != nil {
		framesTotal.WithLabelValues("records").Inc()
	}
	if msg.HasEnd() {
		framesTotal.WithLabelValues("end").Inc()
		p.logger.Debug("End of stream", zap.String("reason", msg.EndReason()))
		p.ended = true
	}
	framesTotal.WithLabelValues("any").Inc()
	return Step{Kind: Frame, Message: msg}
}

// closedStep reports the outcome of a connection that went away before an end
// frame arrived
func (p *Protocol) closedStep() Step {
	<-p.finished
	p.ended = true
	if err := p.wait(); err != nil && !errors.Is(err, context.Canceled) {
		return p.failed(err)
	}
	return Step{Kind: Done}
}

func (p *Protocol) wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.group.Wait()
	})
	return p.waitErr
}

func (p *Protocol) failed(err error) Step {
	p.ended = true
	return Step{Kind: Failed, Err: err}
}

// FetchID returns the id of the running fetch, nil until the server assigns
// one
func (p *Protocol) FetchID() json.RawMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetchID
}

// Abort stops the stream: Receive returns Aborted from now on. The server is
// asked to release the fetch when the protocol closes. Abort may be called
// from any goroutine, any number of times.
func (p *Protocol) Abort() {
	p.abortOnce.Do(func() {
		p.state.CompareAndSwap(int32(StateOpen), int32(StateAborting))
		p.state.CompareAndSwap(int32(StateReceiving), int32(StateAborting))
		p.logger.Debug("Abort requested")
		close(p.aborted)
	})
}

// Close tears the protocol down: the running fetch is aborted on the server
// if its id is known, the connection is closed and the background tasks are
// waited for. Close always completes; cleanup errors are logged.
func (p *Protocol) Close() {
	p.closeOnce.Do(func() {
		p.state.Store(int32(StateClosing))
		close(p.closing)

		select {
		case <-p.finished:
		case <-time.After(gracefulCloseTimeout):
			p.logger.Warn("Monitoring socket did not close gracefully")
		}
		p.group.Exit(nil)
		if err := p.wait(); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Warn("Monitoring socket cleanup failed", zap.Error(err))
		}

		openSessions.Dec()
		sessionsTotal.WithLabelValues("closed").Inc()
		p.state.Store(int32(StateClosed))
		p.logger.Info("Monitoring socket closed")
		close(p.done)
	})
}

// Done is closed once Close has completed
func (p *Protocol) Done() <-chan struct{} {
	return p.done
}

// State returns the current lifecycle state
func (p *Protocol) State() State {
	return State(p.state.Load())
}
