package monitors

import (
	"context"

	"github.com/ridge/must/v2"
	"github.com/ridge/smcmon/format"
	"github.com/ridge/smcmon/logfield"
	"github.com/ridge/smcmon/query"
	"github.com/ridge/smcmon/session"
	"github.com/ridge/smcmon/wire"
)

// Session monitor definitions
const (
	Connections  = "CONNECTIONS"
	Blacklist    = "BLACKLIST"
	Routing      = "ROUTING"
	Users        = "USERS"
	VPNSA        = "VPN_SA"
	SSLVPN       = "SSLVPNV2"
	ActiveAlerts = "ACTIVE_ALERTS"
)

// Monitor is a session monitor query whose records can be read as elements
// of type E
type Monitor[E any] struct {
	*query.Query

	definition string
	element    func(query *query.Query) *query.Query
	decode     func(record wire.Record) (E, bool)
}

func newMonitor[E any](definition, target string, fieldIDs []int, decode func(wire.Record) (E, bool), opts []query.Option) *Monitor[E] {
	opts = append([]query.Option{
		query.Definition(definition),
		query.Target(target),
		query.FieldIDs(fieldIDs...),
	}, opts...)
	return &Monitor[E]{
		Query:      query.New(query.SessionLocation, opts...),
		definition: definition,
		element:    byID,
		decode:     decode,
	}
}

// Definition returns the monitor definition, e.g. CONNECTIONS
func (m *Monitor[E]) Definition() string {
	return m.definition
}

// FetchAsElement fetches up to maxRecv batches and passes every record to fn
// as an element. The query is not modified.
func (m *Monitor[E]) FetchAsElement(ctx context.Context, sess *session.Session, maxRecv int, fn func(E) error) error {
	return m.element(m.Query).FetchRaw(ctx, sess, maxRecv, func(records []wire.Record) error {
		for _, record := range records {
			e, ok := m.decode(record)
			if !ok {
				continue
			}
			if err := fn(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// byID returns a copy of the query returning every field keyed by id, the
// form elements are decoded from
func byID(q *query.Query) *query.Query {
	clone := q.Copy()
	if sel, ok := clone.Format().(format.Selectable); ok {
		must.OK(sel.SetFieldFormat(format.FieldFormatID))
		sel.ClearFieldSelection()
	} else {
		clone.UpdateFormat(format.NewText(format.FieldFormatID))
	}
	return clone
}

func entry[E any](wrap func(Entry) E) func(wire.Record) (E, bool) {
	return func(record wire.Record) (E, bool) {
		return wrap(Entry(record)), true
	}
}

// NewConnectionQuery lists the connections in the state table of the target
func NewConnectionQuery(target string, opts ...query.Option) *Monitor[Connection] {
	return newMonitor(Connections, target, []int{
		logfield.Timestamp,
		logfield.NodeID,
		logfield.Src,
		logfield.Dst,
		logfield.Service,
		logfield.Protocol,
		logfield.Sport,
		logfield.Dport,
		logfield.State,
	}, entry(func(e Entry) Connection { return Connection{e} }), opts)
}

// NewRoutingQuery lists the static and dynamic routes of the target
func NewRoutingQuery(target string, opts ...query.Option) *Monitor[Route] {
	return newMonitor(Routing, target, []int{
		logfield.Timestamp,
		logfield.DstIf,
		logfield.DstZone,
		logfield.RouteNetwork,
		logfield.RouteType,
		logfield.RouteMetric,
	}, entry(func(e Entry) Route { return Route{e} }), opts)
}

// NewUserQuery lists the authenticated users of the target
func NewUserQuery(target string, opts ...query.Option) *Monitor[User] {
	return newMonitor(Users, target, []int{
		logfield.Timestamp,
		logfield.Src,
		logfield.NodeID,
		logfield.SenderDomain,
		logfield.ExpirationTime,
		logfield.Username,
	}, entry(func(e Entry) User { return User{e} }), opts)
}

// NewVPNSAQuery lists the VPN security associations of the target
func NewVPNSAQuery(target string, opts ...query.Option) *Monitor[VPNSecurityAssoc] {
	return newMonitor(VPNSA, target, []int{
		logfield.Timestamp,
		logfield.NodeID,
		logfield.VPNID,
		logfield.SecurityGateway,
		logfield.PeerSecurityGateway,
		logfield.EndPoint,
		logfield.PeerEndPoint,
		logfield.SAClass,
		logfield.NegotiationRole,
		logfield.SrcAddrs,
		logfield.DstAddrs,
		logfield.Protocol,
		logfield.NumBytesSent,
		logfield.NumBytesReceived,
		logfield.ExpirationTime,
	}, entry(func(e Entry) VPNSecurityAssoc { return VPNSecurityAssoc{e} }), opts)
}

// NewSSLVPNQuery lists the SSL VPN sessions of the target
func NewSSLVPNQuery(target string, opts ...query.Option) *Monitor[SSLVPNUser] {
	return newMonitor(SSLVPN, target, []int{
		logfield.SSLVPNSessionMonReceived,
		logfield.SSLVPNSessionMonTimeout,
		logfield.NodeID,
		logfield.Src,
		logfield.Username,
	}, entry(func(e Entry) SSLVPNUser { return SSLVPNUser{e} }), opts)
}

// NewActiveAlertQuery lists the alerts not yet acknowledged on the target
func NewActiveAlertQuery(target string, opts ...query.Option) *Monitor[Entry] {
	return newMonitor(ActiveAlerts, target, []int{
		logfield.Timestamp,
		logfield.NodeID,
		logfield.DataTags,
	}, entry(func(e Entry) Entry { return e }), opts)
}
