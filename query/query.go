// Package query assembles monitoring requests and runs them over a
// monitoring socket.
//
// A request has three parts: query (definition, target, time range, filter),
// fetch (paging) and format (shape of the returned records). Filters are
// installed as immutable snapshots: build the filter completely, then install
// it with UpdateFilter or one of the Add*Filter helpers. Changing a filter
// after installation does not affect the query until it is installed again.
package query

import (
	"encoding/json"
	"fmt"

	"github.com/ridge/must/v2"
	"github.com/ridge/smcmon/filter"
	"github.com/ridge/smcmon/format"
	"github.com/ridge/smcmon/protocol"
	"github.com/ridge/smcmon/wire"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Socket locations
const (
	LogLocation          = "/monitoring/log/socket"
	SessionLocation      = "/monitoring/session/socket"
	NotificationLocation = "/notification/socket"
)

// Query is a monitoring request bound to a socket location
type Query struct {
	Location string

	query    map[string]any
	fetch    map[string]any
	format   format.Format
	fieldIDs []int
	socket   protocol.Options
}

// Option configures a Query
type Option func(q *Query)

// Definition sets the session definition, e.g. CONNECTIONS
func Definition(definition string) Option {
	return func(q *Query) {
		q.query["definition"] = definition
	}
}

// Target sets the engine or cluster the query runs against. Empty targets
// are ignored.
func Target(target string) Option {
	return func(q *Query) {
		if target != "" {
			q.query["target"] = target
		}
	}
}

// FieldIDs sets the default fields, used by formatters when the format
// selects no fields
func FieldIDs(ids ...int) Option {
	return func(q *Query) {
		q.fieldIDs = slices.Clone(ids)
	}
}

// Format sets the format
func Format(f format.Format) Option {
	return func(q *Query) {
		q.format = f
	}
}

// Socket sets the socket options
func Socket(opts protocol.Options) Option {
	return func(q *Query) {
		q.socket = opts
	}
}

// New creates a query for the socket location. The format defaults to texts
// with pretty field names and resolved senders.
func New(location string, opts ...Option) *Query {
	q := &Query{
		Location: location,
		query:    map[string]any{},
		fetch:    map[string]any{},
		format:   format.NewText(format.FieldFormatPretty),
		socket:   protocol.DefaultOptions,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Request returns the request document. The document is a snapshot: later
// changes to the query do not affect it.
func (q *Query) Request() wire.Request {
	return wire.Request{
		Query:  deepCopy(q.query).(map[string]any),
		Fetch:  deepCopy(q.fetch).(map[string]any),
		Format: json.RawMessage(must.OK1(json.Marshal(q.format))),
	}
}

// UpdateQuery merges keys into the query part
func (q *Query) UpdateQuery(kv map[string]any) {
	maps.Copy(q.query, kv)
}

// UpdateFetch merges keys into the fetch part
func (q *Query) UpdateFetch(kv map[string]any) {
	maps.Copy(q.fetch, kv)
}

// UpdateFormat replaces the format
func (q *Query) UpdateFormat(f format.Format) {
	q.format = f
}

// Format returns the format. Changes made to it are part of the next request.
func (q *Query) Format() format.Format {
	return q.format
}

// DefaultFieldIDs returns the default fields of the query
func (q *Query) DefaultFieldIDs() []int {
	return slices.Clone(q.fieldIDs)
}

// SocketOptions returns the socket options
func (q *Query) SocketOptions() protocol.Options {
	return q.socket
}

// UpdateFilter installs a snapshot of the filter, replacing the previous one
func (q *Query) UpdateFilter(f filter.Filter) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode %s filter: %w", f.Type(), err)
	}
	q.query["filter"] = json.RawMessage(data)
	return nil
}

// Filter returns the installed filter document, nil if there is none
func (q *Query) Filter() json.RawMessage {
	raw, _ := q.query["filter"].(json.RawMessage)
	return raw
}

func (q *Query) install(f filter.Filter) {
	must.OK(q.UpdateFilter(f))
}

// AddInFilter installs an in filter and returns it
func (q *Query) AddInFilter(left filter.Value, right ...filter.Value) *filter.In {
	f := filter.NewIn(left, right...)
	q.install(f)
	return f
}

// AddAndFilter installs an and filter and returns it
func (q *Query) AddAndFilter(children ...filter.Filter) *filter.Composite {
	f := filter.NewAnd(children...)
	q.install(f)
	return f
}

// AddOrFilter installs an or filter and returns it
func (q *Query) AddOrFilter(children ...filter.Filter) *filter.Composite {
	f := filter.NewOr(children...)
	q.install(f)
	return f
}

// AddNotFilter installs a not filter and returns it
func (q *Query) AddNotFilter(children ...filter.Filter) *filter.Not {
	f := filter.NewNot(children...)
	q.install(f)
	return f
}

// AddDefinedFilter installs a defined filter and returns it
func (q *Query) AddDefinedFilter(v filter.Value) *filter.Defined {
	f := filter.NewDefined(v)
	q.install(f)
	return f
}

// AddTranslatedFilter installs a translated filter and returns it. A nil
// filter installs an empty expression.
func (q *Query) AddTranslatedFilter(f *filter.Translated) *filter.Translated {
	if f == nil {
		f = filter.NewTranslated()
	}
	q.install(f)
	return f
}

// Copy returns a deep copy of the query
func (q *Query) Copy() *Query {
	return &Query{
		Location: q.Location,
		query:    deepCopy(q.query).(map[string]any),
		fetch:    deepCopy(q.fetch).(map[string]any),
		format:   q.format.Clone(),
		fieldIDs: slices.Clone(q.fieldIDs),
		socket:   q.socket,
	}
}

func deepCopy(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, vv := range v {
			out[k] = deepCopy(vv)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, vv := range v {
			out[i] = deepCopy(vv)
		}
		return out
	case []int:
		return slices.Clone(v)
	case []string:
		return slices.Clone(v)
	default:
		// json.RawMessage snapshots are never modified in place
		return v
	}
}
