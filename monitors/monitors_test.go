package monitors

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ridge/must/v2"
	"github.com/ridge/smcmon/format"
	"github.com/ridge/smcmon/query"
	"github.com/ridge/smcmon/smctest"
	"github.com/ridge/smcmon/test"
	"github.com/ridge/smcmon/wire"
	"github.com/ridge/tj"
	"github.com/stretchr/testify/require"
)

func script(server *smctest.Server, location string, frames ...any) <-chan map[string]any {
	requests := make(chan map[string]any, 1)
	server.Handle(location, func(ctx context.Context, conn *smctest.Conn) error {
		req, err := conn.Request()
		if err != nil {
			return err
		}
		requests <- req
		for _, frame := range frames {
			if err := conn.Send(frame); err != nil {
				return err
			}
		}
		conn.Wait()
		return nil
	})
	return requests
}

func added(records ...tj.O) tj.O {
	list := make(tj.A, 0, len(records))
	for _, r := range records {
		list = append(list, r)
	}
	return tj.O{"records": tj.O{"added": list}}
}

func requireJSON(t *testing.T, expected, actual any) {
	t.Helper()
	require.JSONEq(t, string(must.OK1(json.Marshal(expected))), string(must.OK1(json.Marshal(actual))))
}

func TestConnections(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	requests := script(server, query.SessionLocation, tj.O{"fetch": 1}, added(tj.O{
		"1":   "2017-09-04 14:25:52",
		"3":   "ngf-1065",
		"7":   "192.168.4.67",
		"8":   "52.206.43.66",
		"27":  "Dumb HTTP",
		"11":  "TCP",
		"9":   "35236",
		"10":  "80",
		"116": "TCP time wait",
	}, tj.O{"7": "10.0.0.1"}))

	m := NewConnectionQuery("sg_vm")
	var conns []Connection
	require.NoError(t, m.FetchAsElement(ctx, server.Session, 1, func(c Connection) error {
		conns = append(conns, c)
		return nil
	}))

	require.Len(t, conns, 2)
	c := conns[0]
	require.Equal(t, "2017-09-04 14:25:52", c.Timestamp())
	require.Equal(t, "ngf-1065", c.Engine())
	require.Equal(t, "192.168.4.67", c.SourceAddr())
	require.Equal(t, "52.206.43.66", c.DestAddr())
	require.Equal(t, "Dumb HTTP", c.Service())
	require.Equal(t, "TCP", c.Protocol())
	require.Equal(t, 35236, c.SourcePort())
	require.Equal(t, 80, c.DestPort())
	require.Equal(t, "TCP time wait", c.State())
	require.Equal(t, "Connection(src=192.168.4.67,dst=52.206.43.66,proto=TCP,dst_port=80,state=TCP time wait)", c.String())

	require.Equal(t, "ANY", conns[1].Protocol())
	require.Zero(t, conns[1].DestPort())

	requireJSON(t, tj.O{
		"query": tj.O{"definition": "CONNECTIONS", "target": "sg_vm"},
		"fetch": tj.O{},
		"format": tj.O{
			"type":         "texts",
			"field_format": "id",
			"resolving":    tj.O{"senders": true},
		},
	}, <-requests)

	// The query keeps its own format
	require.Equal(t, format.FieldFormatPretty, m.Format().FieldFormat())
	require.Equal(t, Connections, m.Definition())
}

func TestRoutes(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	script(server, query.SessionLocation, added(tj.O{
		"24":  "2017-09-05 17:30:13",
		"13":  "Interface #1",
		"160": "10.0.0.0",
		"165": "Connected",
		"163": "0",
	}))

	var routes []Route
	require.NoError(t, NewRoutingQuery("sg_vm").FetchAsElement(ctx, server.Session, 1, func(r Route) error {
		routes = append(routes, r)
		return nil
	}))
	require.Len(t, routes, 1)
	r := routes[0]
	require.Equal(t, "2017-09-05 17:30:13", r.Timestamp())
	require.Equal(t, "Interface #1", r.DestIf())
	require.Equal(t, "10.0.0.0", r.RouteNetwork())
	require.Equal(t, "Connected", r.RouteType())
	require.Zero(t, r.RouteMetric())
	require.Equal(t, "Route(dest_if=Interface #1,network=10.0.0.0,type=Connected)", r.String())
}

func TestUsers(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	script(server, query.SessionLocation, added(tj.O{
		"1":    "2017-09-05 15:57:10",
		"3001": "mlcadmin@lepages.local domain",
		"7":    "172.18.1.36",
		"38":   "Shared Domain",
		"534":  "2017-09-05 23:57:10",
	}))

	var users []User
	require.NoError(t, NewUserQuery("sg_vm").FetchAsElement(ctx, server.Session, 1, func(u User) error {
		users = append(users, u)
		return nil
	}))
	require.Len(t, users, 1)
	u := users[0]
	require.Equal(t, "mlcadmin@lepages.local domain", u.Username())
	require.Equal(t, "172.18.1.36", u.IPAddress())
	require.Equal(t, "Shared Domain", u.Domain())
	require.Equal(t, "2017-09-05 23:57:10", u.Expiration())
	require.Equal(t, "2017-09-05 15:57:10", u.Timestamp())
}

func TestVPNSecurityAssocs(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	script(server, query.SessionLocation, added(tj.O{
		"1":     "2017-09-05 17:09:15",
		"502":   "sg_vm_vpn",
		"505":   "cisco_asa_5505",
		"504":   "10.0.0.254",
		"506":   "ciscoasa-5505 (10.0.0.160)",
		"20007": "172.18.1.0 - 172.18.1.255",
		"20008": "192.168.3.0 - 192.168.3.255",
		"535":   "IPsec",
		"11":    "ESP",
		"539":   "Initiator",
		"548":   "0",
		"549":   "0",
		"534":   "2017-09-06 00:29:15",
	}))

	var sas []VPNSecurityAssoc
	require.NoError(t, NewVPNSAQuery("sg_vm").FetchAsElement(ctx, server.Session, 1, func(sa VPNSecurityAssoc) error {
		sas = append(sas, sa)
		return nil
	}))
	require.Len(t, sas, 1)
	sa := sas[0]
	require.Equal(t, "sg_vm_vpn", sa.LocalGateway())
	require.Equal(t, "cisco_asa_5505", sa.PeerGateway())
	require.Equal(t, "10.0.0.254", sa.LocalEndpoint())
	require.Equal(t, "ciscoasa-5505 (10.0.0.160)", sa.PeerEndpoint())
	require.Equal(t, "172.18.1.0 - 172.18.1.255", sa.LocalNetworks())
	require.Equal(t, "192.168.3.0 - 192.168.3.255", sa.PeerNetworks())
	require.Equal(t, "IPsec", sa.SAType())
	require.Equal(t, "ESP", sa.Protocol())
	require.Equal(t, "Initiator", sa.NegotiationRole())
	require.Zero(t, sa.BytesSent())
	require.Zero(t, sa.BytesReceived())
	require.Equal(t, "2017-09-06 00:29:15", sa.Expiration())
}

func TestSSLVPNUsers(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	script(server, query.SessionLocation, added(tj.O{
		"809":  "2017-09-05 18:07:03",
		"810":  "2017-09-05 20:07:03",
		"3001": "dlepage@InternalDomain",
		"7":    "172.18.1.52",
	}))

	var users []SSLVPNUser
	require.NoError(t, NewSSLVPNQuery("sg_vm").FetchAsElement(ctx, server.Session, 1, func(u SSLVPNUser) error {
		users = append(users, u)
		return nil
	}))
	require.Len(t, users, 1)
	u := users[0]
	require.Equal(t, "2017-09-05 18:07:03", u.SessionStart())
	require.Equal(t, "2017-09-05 20:07:03", u.SessionExpiration())
	require.Equal(t, "dlepage@InternalDomain", u.Username())
	require.Equal(t, "172.18.1.52", u.SourceAddr())
}

func TestActiveAlerts(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	requests := script(server, query.SessionLocation, added(tj.O{"1": "2017-09-05 18:07:03", "3": "ngf-1065"}))

	var alerts []Entry
	require.NoError(t, NewActiveAlertQuery("").FetchAsElement(ctx, server.Session, 1, func(e Entry) error {
		alerts = append(alerts, e)
		return nil
	}))
	require.Len(t, alerts, 1)
	require.Equal(t, "ngf-1065", alerts[0].Engine())
	requireJSON(t, tj.O{"definition": "ACTIVE_ALERTS"}, (<-requests)["query"])
}

func TestBlacklist(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	requests := script(server, query.SessionLocation, added(tj.O{
		"bldata": tj.O{
			"blacklist_href":                       "http://172.18.1.150:8082/6.2/elements/fw_cluster/116/blacklist/MTA3MjA5Njg3MDU=",
			"Timestamp":                            "2017-08-26 15:52:43",
			"NodeId":                               "ngf-1065",
			"BlacklistEntrySourceIp":               "2.2.2.5",
			"BlacklistEntrySourceIpPrefixlen":      "32",
			"BlacklistEntryDestinationIp":          "0.0.0.0",
			"BlacklistEntryDestinationIpPrefixlen": "32",
			"BlacklistEntryDuration":               "222222220",
		},
		"blid": tj.O{"Blacklist Entry ID": "10720968705"},
	}, tj.O{"blid": tj.O{"Blacklist Entry ID": "1"}}))

	var entries []BlacklistEntry
	require.NoError(t, NewBlacklistQuery("sg_vm", "US/Eastern").FetchAsElement(ctx, server.Session, 1, func(b BlacklistEntry) error {
		entries = append(entries, b)
		return nil
	}))

	// Records without data are skipped
	require.Len(t, entries, 1)
	b := entries[0]
	require.Equal(t, "10720968705", b.ID())
	require.Equal(t, "2017-08-26 15:52:43", b.Timestamp())
	require.Equal(t, "ngf-1065", b.Engine())
	require.Equal(t, "http://172.18.1.150:8082/6.2/elements/fw_cluster/116/blacklist/MTA3MjA5Njg3MDU=", b.Href())
	require.Equal(t, "2.2.2.5/32", b.Source())
	require.Equal(t, "0.0.0.0/32", b.Destination())
	require.Equal(t, "ANY", b.Protocol())
	require.Equal(t, "ANY", b.SourcePorts())
	require.Equal(t, "ANY", b.DestPorts())
	require.Equal(t, 222222220, b.Duration())

	requireJSON(t, tj.O{
		"type": "combined",
		"formats": tj.O{
			"bldata": tj.O{
				"type":         "texts",
				"field_format": "name",
				"resolving":    tj.O{"senders": true, "timezone": "US/Eastern", "time_show_zone": true},
			},
			"blid": tj.O{
				"type":         "texts",
				"field_format": "pretty",
				"field_names":  tj.A{"BlacklistEntryId"},
				"resolving":    tj.O{"senders": true},
			},
		},
	}, (<-requests)["format"])
}

func TestBlacklistPorts(t *testing.T) {
	b := BlacklistEntry{
		"BlacklistEntryProtocol":             "TCP",
		"BlacklistEntrySourcePort":           "1024",
		"BlacklistEntrySourcePortRange":      "2048",
		"BlacklistEntryDestinationPort":      "443",
		"BlacklistEntryDestinationPortRange": "443",
	}
	require.Equal(t, "TCP", b.Protocol())
	require.Equal(t, "1024-2048", b.SourcePorts())
	require.Equal(t, "443-443", b.DestPorts())
}

func TestLogQuery(t *testing.T) {
	q := NewLogQuery(50)
	req := q.Request()
	require.Equal(t, "stored", req.Query["type"])
	require.EqualValues(t, 0, req.Query["start_ms"])
	require.EqualValues(t, 0, req.Query["end_ms"])
	require.Equal(t, map[string]any{"backwards": true, "quantity": 50}, req.Fetch)
	require.Equal(t, LogFieldIDs, q.DefaultFieldIDs())
	n, ok := q.FetchSize()
	require.True(t, ok)
	require.Equal(t, 50, n)

	q.Backwards(false)
	q.TimeRange(query.TimeRange{StartMS: 1000, EndMS: 2000})
	req = q.Request()
	require.Equal(t, false, req.Fetch["backwards"])
	require.EqualValues(t, 1000, req.Query["start_ms"])
	require.EqualValues(t, 2000, req.Query["end_ms"])

	_, ok = NewLogQuery(0).FetchSize()
	require.False(t, ok)
}

func TestFetchLogBatch(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	requests := script(server, query.LogLocation,
		tj.O{"fetch": 1},
		tj.O{"records": tj.A{tj.O{"Src": "1.1.1.1"}}},
		added(tj.O{"Src": "2.2.2.2"}),
		tj.O{"end": "done"},
	)

	q := NewLogQuery(0)
	formatter := query.FormatterFunc[string](func(records []wire.Record) (string, error) {
		return records[0].String("Src"), nil
	})
	var batches []string
	require.NoError(t, FetchLogBatch(ctx, q, server.Session, formatter, func(s string) error {
		batches = append(batches, s)
		return nil
	}))
	require.Equal(t, []string{"1.1.1.1", "2.2.2.2"}, batches)

	req := <-requests
	requireJSON(t, tj.O{"backwards": true, "quantity": DefaultBatchSize}, req["fetch"])

	// The query is unchanged
	_, ok := q.FetchSize()
	require.False(t, ok)
}

func TestFetchLogLive(t *testing.T) {
	ctx := test.Context(t)
	server := smctest.New(t)
	requests := script(server, query.LogLocation,
		tj.O{"fetch": "live"},
		added(tj.O{"Src": "1.1.1.1"}),
		added(tj.O{"Src": "2.2.2.2"}),
	)

	formatter := query.FormatterFunc[string](func(records []wire.Record) (string, error) {
		return records[0].String("Src"), nil
	})
	var out []string
	require.NoError(t, FetchLogLive(ctx, NewLogQuery(10), server.Session, formatter, func(s string) error {
		out = append(out, s)
		if len(out) == 2 {
			return query.ErrStop
		}
		return nil
	}))
	require.Equal(t, []string{"1.1.1.1", "2.2.2.2"}, out)
	require.Equal(t, "current", (<-requests)["query"].(map[string]any)["type"])
}

func TestByIDForcesFieldFormat(t *testing.T) {
	detailed := format.NewDetailed(format.FieldFormatPretty)
	detailed.SetFieldIDs(7, 8)
	q := query.New(query.SessionLocation, query.Format(detailed))

	byIDQuery := byID(q)
	require.Equal(t, format.FieldFormatID, byIDQuery.Format().FieldFormat())
	require.Empty(t, byIDQuery.Format().FieldIDs())
	require.Equal(t, format.FieldFormatPretty, q.Format().FieldFormat())
	require.Equal(t, []int{7, 8}, q.Format().FieldIDs())

	combined := query.New(query.SessionLocation, query.Format(format.NewCombined(map[string]format.Format{
		"bldata": format.NewText(format.FieldFormatName),
	})))
	byIDQuery = byID(combined)
	require.Equal(t, format.FieldFormatID, byIDQuery.Format().FieldFormat())
	require.Equal(t, "", combined.Format().FieldFormat())
}
