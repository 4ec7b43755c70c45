package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ridge/smcmon/protocol"
	"github.com/ridge/smcmon/session"
	"github.com/ridge/smcmon/smctest"
	"github.com/ridge/smcmon/test"
	"github.com/ridge/smcmon/wire"
	"github.com/ridge/tj"
	"github.com/stretchr/testify/require"
)

// script answers the request with the frames and records what the client
// sends afterwards
func script(server *smctest.Server, location string, frames ...string) <-chan []map[string]any {
	requests := make(chan []map[string]any, 1)
	server.Handle(location, func(ctx context.Context, conn *smctest.Conn) error {
		req, err := conn.Request()
		if err != nil {
			return err
		}
		for _, frame := range frames {
			if err := conn.SendRaw(frame); err != nil {
				return err
			}
		}
		rest, err := conn.Rest()
		requests <- append([]map[string]any{req}, rest...)
		return err
	})
	return requests
}

func srcs(records []wire.Record) string {
	var out []string
	for _, r := range records {
		out = append(out, r.String("Src"))
	}
	return strings.Join(out, ",")
}

func TestExecute(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	requests := script(server, LogLocation,
		`{"fetch": 1, "success": "ok"}`,
		`{"records": {"added": []}}`,
		`{"end": "done"}`,
	)

	q := New(LogLocation)
	q.UpdateQuery(map[string]any{"type": "stored"})

	var frames []wire.Message
	require.NoError(t, q.Execute(ctx, server.Session, func(msg wire.Message) error {
		frames = append(frames, msg)
		return nil
	}))
	require.Len(t, frames, 3)
	require.True(t, frames[0].HasSuccess())
	require.True(t, frames[2].HasEnd())

	got := <-requests
	requireJSON(t, q.Request(), got[0])
	requireJSON(t, tj.A{tj.O{"abort": 1}}, got[1:])
}

func TestFetchRawBounded(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	requests := script(server, LogLocation,
		`{"fetch": 5}`,
		`{"records": {"added": [{"Src": "1.1.1.1"}]}}`,
		`{"records": {"added": []}}`,
		`{"records": {"added": [{"Src": "2.2.2.2"}, {"Src": "3.3.3.3"}]}}`,
		`{"records": {"added": [{"Src": "4.4.4.4"}]}}`,
		`{"records": {"added": [{"Src": "5.5.5.5"}]}}`,
	)

	var batches []string
	require.NoError(t, New(LogLocation).FetchRaw(ctx, server.Session, 2, func(records []wire.Record) error {
		batches = append(batches, srcs(records))
		return nil
	}))
	require.Equal(t, []string{"1.1.1.1", "2.2.2.2,3.3.3.3"}, batches)

	got := <-requests
	requireJSON(t, tj.A{tj.O{"abort": 5}}, got[1:])
}

func TestFetchRawDefaultsToOneBatch(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	script(server, LogLocation,
		`{"records": {"added": [{"Src": "1.1.1.1"}]}}`,
		`{"records": {"added": [{"Src": "2.2.2.2"}]}}`,
	)

	var batches []string
	require.NoError(t, New(LogLocation).FetchRaw(ctx, server.Session, 0, func(records []wire.Record) error {
		batches = append(batches, srcs(records))
		return nil
	}))
	require.Equal(t, []string{"1.1.1.1"}, batches)
}

func TestFetchBatch(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	script(server, LogLocation,
		`{"records": {"added": [{"Src": "1.1.1.1"}]}}`,
		`{"records": {"added": [{"Src": "2.2.2.2"}]}}`,
		`{"end": "done"}`,
	)

	formatter := FormatterFunc[string](func(records []wire.Record) (string, error) {
		return "[" + srcs(records) + "]", nil
	})
	var out []string
	require.NoError(t, FetchBatch(ctx, New(LogLocation), server.Session, 10, formatter, func(s string) error {
		out = append(out, s)
		return nil
	}))
	require.Equal(t, []string{"[1.1.1.1]", "[2.2.2.2]"}, out)
}

func TestFetchLiveSkipsEmptyBatches(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	script(server, LogLocation,
		`{"fetch": 3}`,
		`{"records": {"added": []}}`,
		`{"records": {"added": [{"Src": "1.1.1.1"}]}}`,
		`{"records": {}}`,
		`{"records": {"added": [{"Src": "2.2.2.2"}]}}`,
		`{"records": {"added": []}}`,
		`{"records": {"added": [{"Src": "3.3.3.3"}]}}`,
		`{"end": "done"}`,
	)

	formatter := FormatterFunc[string](func(records []wire.Record) (string, error) {
		return srcs(records), nil
	})
	var out []string
	require.NoError(t, FetchLive(ctx, New(LogLocation), server.Session, formatter, func(s string) error {
		out = append(out, s)
		return nil
	}))
	require.Equal(t, []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"}, out)
}

func TestFetchLiveStop(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	requests := script(server, LogLocation,
		`{"fetch": "live-1"}`,
		`{"records": {"added": [{"Src": "1.1.1.1"}]}}`,
		`{"records": {"added": [{"Src": "2.2.2.2"}]}}`,
	)

	formatter := FormatterFunc[string](func(records []wire.Record) (string, error) {
		return srcs(records), nil
	})
	var out []string
	require.NoError(t, FetchLive(ctx, New(LogLocation), server.Session, formatter, func(s string) error {
		out = append(out, s)
		if len(out) == 2 {
			return ErrStop
		}
		return nil
	}))
	require.Equal(t, []string{"1.1.1.1", "2.2.2.2"}, out)
	requireJSON(t, tj.A{tj.O{"abort": "live-1"}}, (<-requests)[1:])
}

func TestCallbackErrorReturned(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	script(server, LogLocation, `{"records": {"added": [{"Src": "1.1.1.1"}]}}`)

	errBoom := errors.New("boom")
	err := New(LogLocation).FetchRaw(ctx, server.Session, 3, func(records []wire.Record) error {
		return errBoom
	})
	require.Same(t, errBoom, err)
}

func TestFormatterErrorReturned(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	script(server, LogLocation, `{"records": {"added": [{"Src": "1.1.1.1"}]}}`)

	errFormat := errors.New("bad batch")
	formatter := FormatterFunc[string](func(records []wire.Record) (string, error) {
		return "", errFormat
	})
	err := FetchBatch(ctx, New(LogLocation), server.Session, 1, formatter, func(string) error {
		return nil
	})
	require.ErrorIs(t, err, errFormat)
}

func TestFailure(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	script(server, SessionLocation, `{"failure": "Definition FOO is unknown"}`)

	err := New(SessionLocation, Definition("FOO")).FetchRaw(ctx, server.Session, 1, func(records []wire.Record) error {
		return nil
	})
	require.ErrorIs(t, err, protocol.ErrFetchAborted)
	var invalid *protocol.InvalidFetch
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "Definition FOO is unknown", invalid.Reason)
}

func TestNoSession(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	script(server, LogLocation)

	err := New(LogLocation).FetchRaw(ctx, &session.Session{}, 1, func(records []wire.Record) error {
		return nil
	})
	require.ErrorIs(t, err, protocol.ErrSessionNotFound)
	require.Zero(t, server.Connections())
}

func TestResolveFieldIDs(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	requests := script(server, LogLocation,
		`{"fetch": 9}`,
		`{"fields": [{"id": 7, "name": "Src", "pretty": "Source", "type": "ip"}, {"id": 8, "name": "Dst", "pretty": "Destination", "type": "ip"}]}`,
	)

	fields, err := ResolveFieldIDs(ctx, server.Session, protocol.DefaultOptions, 7, 8)
	require.NoError(t, err)
	require.Equal(t, []wire.Field{
		{ID: 7, Name: "Src", Pretty: "Source", Type: "ip"},
		{ID: 8, Name: "Dst", Pretty: "Destination", Type: "ip"},
	}, fields)

	got := <-requests
	requireJSON(t, tj.O{
		"query":  tj.O{},
		"fetch":  tj.O{"quantity": 0},
		"format": tj.O{"type": "detailed", "field_ids": tj.A{7, 8}},
	}, got[0])
}

func TestResolveFieldIDsEmpty(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	script(server, LogLocation, `{"end": "no fields"}`)

	fields, err := ResolveFieldIDs(ctx, server.Session, protocol.DefaultOptions, 7)
	require.NoError(t, err)
	require.Empty(t, fields)
}

func TestStreamInit(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	requests := script(server, NotificationLocation,
		`{"success": "ok", "context": "host", "subscription_id": 1}`,
		`{"end": "done"}`,
	)

	var frames int
	err := StreamInit(ctx, server.Session, NotificationLocation, wire.Context{Context: "host"}, protocol.DefaultOptions,
		func(p *protocol.Protocol) error {
			return p.Send(ctx, wire.Context{Context: "alias"})
		},
		func(_ *protocol.Protocol, msg wire.Message) error {
			frames++
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, 2, frames)
	requireJSON(t, tj.A{tj.O{"context": "host"}, tj.O{"context": "alias"}}, <-requests)
}

func TestStreamInitError(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	script(server, NotificationLocation, `{"end": "done"}`)

	errInit := errors.New("init failed")
	called := false
	err := StreamInit(ctx, server.Session, NotificationLocation, wire.Context{Context: "host"}, protocol.DefaultOptions,
		func(p *protocol.Protocol) error { return errInit },
		func(_ *protocol.Protocol, msg wire.Message) error {
			called = true
			return nil
		})
	require.ErrorIs(t, err, errInit)
	require.False(t, called)

	server = smctest.New(t)
	script(server, NotificationLocation, `{"end": "done"}`)
	require.NoError(t, StreamInit(ctx, server.Session, NotificationLocation, wire.Context{Context: "host"}, protocol.DefaultOptions,
		func(p *protocol.Protocol) error { return ErrStop },
		func(_ *protocol.Protocol, msg wire.Message) error { return nil }))
}
