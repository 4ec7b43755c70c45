package query

import (
	"context"
	"errors"

	"github.com/ridge/smcmon/protocol"
	"github.com/ridge/smcmon/session"
	"github.com/ridge/smcmon/tlog"
	"github.com/ridge/smcmon/wire"
	"go.uber.org/zap"
)

// ErrStop can be returned from a fetch callback to end the stream early. The
// fetch then returns nil.
var ErrStop = errors.New("stop fetching")

// Formatter turns a batch of records into the shape a caller consumes
type Formatter[T any] interface {
	Format(records []wire.Record) (T, error)
}

// FormatterFunc adapts a function to Formatter
type FormatterFunc[T any] func(records []wire.Record) (T, error)

// Format implements Formatter
func (f FormatterFunc[T]) Format(records []wire.Record) (T, error) {
	return f(records)
}

// StepFn handles one frame of a running stream. The protocol is passed so
// the handler can abort the stream.
type StepFn func(p *protocol.Protocol, msg wire.Message) error

// Stream sends the request on a new socket and passes every frame to fn
// until the stream ends, is aborted or fails
func Stream(ctx context.Context, sess *session.Session, location string, request any, opts protocol.Options, fn StepFn) error {
	return StreamInit(ctx, sess, location, request, opts, nil, fn)
}

// StreamInit is Stream with an init function called once the socket is open
// and before the first frame is received, e.g. to send extra subscriptions.
// An error from init ends the stream.
func StreamInit(ctx context.Context, sess *session.Session, location string, request any, opts protocol.Options, init func(p *protocol.Protocol) error, fn StepFn) error {
	ctx = tlog.With(ctx, zap.String("location", location))
	err := protocol.Run(ctx, sess, location, request, opts, func(p *protocol.Protocol) error {
		if init != nil {
			if err := init(p); err != nil {
				return err
			}
		}
		for {
			step := p.Receive(ctx)
			switch step.Kind {
			case protocol.Frame:
				if err := fn(p, step.Message); err != nil {
					return err
				}
			case protocol.Failed:
				return step.Err
			default:
				tlog.Get(ctx).Debug("Stream finished", zap.Stringer("result", step.Kind))
				return nil
			}
		}
	})
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

// Stream runs the query and passes every frame to fn
func (q *Query) Stream(ctx context.Context, sess *session.Session, fn StepFn) error {
	return Stream(ctx, sess, q.Location, q.Request(), q.socket, fn)
}

// Execute runs the query and passes every frame to fn unmodified
func (q *Query) Execute(ctx context.Context, sess *session.Session, fn func(msg wire.Message) error) error {
	return q.Stream(ctx, sess, func(_ *protocol.Protocol, msg wire.Message) error {
		return fn(msg)
	})
}

// FetchRaw runs the query and passes every non-empty batch of added records
// to fn. After maxRecv batches the fetch is aborted and FetchRaw returns.
// maxRecv <= 0 means a single batch.
func (q *Query) FetchRaw(ctx context.Context, sess *session.Session, maxRecv int, fn func(records []wire.Record) error) error {
	if maxRecv <= 0 {
		maxRecv = 1
	}
	received := 0
	return q.Stream(ctx, sess, func(p *protocol.Protocol, msg wire.Message) error {
		added := msg.Added()
		if len(added) == 0 {
			return nil
		}
		if err := fn(added); err != nil {
			return err
		}
		received++
		if received == maxRecv {
			p.Abort()
		}
		return nil
	})
}

// FetchBatch is FetchRaw with every batch passed through the formatter
func FetchBatch[T any](ctx context.Context, q *Query, sess *session.Session, maxRecv int, formatter Formatter[T], fn func(T) error) error {
	return q.FetchRaw(ctx, sess, maxRecv, func(records []wire.Record) error {
		out, err := formatter.Format(records)
		if err != nil {
			return err
		}
		return fn(out)
	})
}

// FetchLive streams every non-empty batch of added records through the
// formatter until the server ends the stream, fn returns an error or ctx is
// canceled. There is no bound on the number of batches.
func FetchLive[T any](ctx context.Context, q *Query, sess *session.Session, formatter Formatter[T], fn func(T) error) error {
	return q.Execute(ctx, sess, func(msg wire.Message) error {
		added := msg.Added()
		if len(added) == 0 {
			return nil
		}
		out, err := formatter.Format(added)
		if err != nil {
			return err
		}
		return fn(out)
	})
}

// ResolveFieldIDs asks the server for the metadata of the fields: a
// detailed query with zero quantity, whose first frame lists the fields.
// The result is empty when the server sends no field metadata.
func ResolveFieldIDs(ctx context.Context, sess *session.Session, opts protocol.Options, ids ...int) ([]wire.Field, error) {
	request := wire.Request{
		Query: map[string]any{},
		Fetch: map[string]any{"quantity": 0},
		Format: map[string]any{
			"type":      "detailed",
			"field_ids": ids,
		},
	}
	var fields []wire.Field
	err := Stream(ctx, sess, LogLocation, request, opts, func(_ *protocol.Protocol, msg wire.Message) error {
		if msg.Fields == nil {
			return nil
		}
		fields = msg.Fields
		return ErrStop
	})
	if err != nil {
		return nil, err
	}
	if fields == nil {
		fields = []wire.Field{}
	}
	return fields, nil
}
