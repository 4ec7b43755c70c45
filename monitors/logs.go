// Package monitors provides the query families of the management server:
// the log viewer and the session monitors (connections, blacklist, routes,
// users, VPN security associations, SSL VPN sessions, active alerts).
package monitors

import (
	"context"

	"github.com/ridge/smcmon/logfield"
	"github.com/ridge/smcmon/protocol"
	"github.com/ridge/smcmon/query"
	"github.com/ridge/smcmon/session"
	"github.com/ridge/smcmon/wire"
)

// Log fetch types
const (
	Stored  = "stored"
	Current = "current"
)

// DefaultBatchSize is the quantity of a batch log fetch that sets none
const DefaultBatchSize = 200

// LogFieldIDs are the default fields of log queries
var LogFieldIDs = []int{
	logfield.Timestamp,
	logfield.Action,
	logfield.NodeID,
	logfield.Src,
	logfield.Sport,
	logfield.Dst,
	logfield.Dport,
	logfield.Protocol,
}

// LogQuery reads the log viewer: stored logs or a real time feed
type LogQuery struct {
	*query.Query
}

// NewLogQuery creates a query for stored logs, newest first. fetchSize
// limits the number of records; fetchSize <= 0 leaves the fetch unbounded.
//
// Options are applied after the defaults: the socket defaults to
// protocol.LogOptions and the fields to LogFieldIDs.
func NewLogQuery(fetchSize int, opts ...query.Option) *LogQuery {
	opts = append([]query.Option{
		query.FieldIDs(LogFieldIDs...),
		query.Socket(protocol.LogOptions),
	}, opts...)
	q := &LogQuery{Query: query.New(query.LogLocation, opts...)}

	fetch := map[string]any{"backwards": true}
	if fetchSize > 0 {
		fetch["quantity"] = fetchSize
	}
	q.UpdateFetch(fetch)
	q.TimeRange(query.TimeRange{})
	q.SetFetchType(Stored)
	return q
}

// SetFetchType sets stored or current (real time). Real time queries ignore
// the fetch size, time range and direction.
func (q *LogQuery) SetFetchType(fetchType string) {
	q.UpdateQuery(map[string]any{"type": fetchType})
}

// Backwards sets whether records are returned newest first
func (q *LogQuery) Backwards(backwards bool) {
	q.UpdateFetch(map[string]any{"backwards": backwards})
}

// TimeRange limits the query to a period
func (q *LogQuery) TimeRange(r query.TimeRange) {
	r.Apply(q.Query)
}

// FetchSize returns the fetch size and whether one is set
func (q *LogQuery) FetchSize() (int, bool) {
	n, ok := q.Request().Fetch["quantity"].(int)
	return n, ok
}

// Copy returns a deep copy of the log query
func (q *LogQuery) Copy() *LogQuery {
	return &LogQuery{Query: q.Query.Copy()}
}

// FetchRaw runs the query and passes every non-empty batch of records to fn.
// Log batches arrive either as a plain list or as added records. There is no
// bound on the number of batches: stored queries end with the server's end
// frame, real time ones run until fn or ctx stops them.
func (q *LogQuery) FetchRaw(ctx context.Context, sess *session.Session, fn func(records []wire.Record) error) error {
	return q.Execute(ctx, sess, func(msg wire.Message) error {
		records := logRecords(msg)
		if len(records) == 0 {
			return nil
		}
		return fn(records)
	})
}

func logRecords(msg wire.Message) []wire.Record {
	if msg.Records == nil {
		return nil
	}
	if msg.Records.IsList() {
		return msg.Records.List
	}
	return msg.Records.Added
}

// FetchLogBatch fetches stored logs through the formatter. The query is not
// modified; the fetch size defaults to DefaultBatchSize.
func FetchLogBatch[T any](ctx context.Context, q *LogQuery, sess *session.Session, formatter query.Formatter[T], fn func(T) error) error {
	clone := q.Copy()
	clone.SetFetchType(Stored)
	if n, ok := clone.FetchSize(); !ok || n <= 0 {
		clone.UpdateFetch(map[string]any{"quantity": DefaultBatchSize})
	}
	return fetchLogs(ctx, clone, sess, formatter, fn)
}

// FetchLogLive streams logs in real time through the formatter. The query is
// not modified.
func FetchLogLive[T any](ctx context.Context, q *LogQuery, sess *session.Session, formatter query.Formatter[T], fn func(T) error) error {
	clone := q.Copy()
	clone.SetFetchType(Current)
	return fetchLogs(ctx, clone, sess, formatter, fn)
}

func fetchLogs[T any](ctx context.Context, q *LogQuery, sess *session.Session, formatter query.Formatter[T], fn func(T) error) error {
	return q.FetchRaw(ctx, sess, func(records []wire.Record) error {
		out, err := formatter.Format(records)
		if err != nil {
			return err
		}
		return fn(out)
	})
}
