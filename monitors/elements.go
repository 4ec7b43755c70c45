package monitors

import (
	"fmt"
	"strconv"

	"github.com/ridge/smcmon/logfield"
	"github.com/ridge/smcmon/wire"
)

// Entry is a session monitor record keyed by field id
type Entry wire.Record

// Get returns the value of the field, empty if absent
func (e Entry) Get(field int) string {
	return wire.Record(e).String(logfield.Key(field))
}

// Lookup returns the value of the field and whether it is present
func (e Entry) Lookup(field int) (string, bool) {
	return wire.Record(e).Lookup(logfield.Key(field))
}

// Int returns the numeric value of the field, 0 if absent or not a number
func (e Entry) Int(field int) int {
	n, err := strconv.Atoi(e.Get(field))
	if err != nil {
		return 0
	}
	return n
}

// Timestamp returns the creation time of the record in the query timezone
func (e Entry) Timestamp() string { return e.Get(logfield.Timestamp) }

// Engine returns the engine or cluster the record comes from
func (e Entry) Engine() string { return e.Get(logfield.NodeID) }

// Connection is a state table entry
type Connection struct{ Entry }

func (c Connection) SourceAddr() string { return c.Get(logfield.Src) }
func (c Connection) DestAddr() string   { return c.Get(logfield.Dst) }
func (c Connection) Service() string    { return c.Get(logfield.Service) }
func (c Connection) SourcePort() int    { return c.Int(logfield.Sport) }
func (c Connection) DestPort() int      { return c.Int(logfield.Dport) }

// State is the connection state, e.g. TCP established
func (c Connection) State() string { return c.Get(logfield.State) }

// Protocol returns the IP protocol, ANY if unset
func (c Connection) Protocol() string {
	if p, ok := c.Lookup(logfield.Protocol); ok {
		return p
	}
	return "ANY"
}

func (c Connection) String() string {
	return fmt.Sprintf("Connection(src=%s,dst=%s,proto=%s,dst_port=%d,state=%s)",
		c.SourceAddr(), c.DestAddr(), c.Protocol(), c.DestPort(), c.State())
}

// Route is a routing table entry
type Route struct{ Entry }

// Timestamp returns the reception time of the route record
func (r Route) Timestamp() string { return r.Get(logfield.ReceptionTime) }

func (r Route) DestIf() string       { return r.Get(logfield.DstIf) }
func (r Route) DestZone() string     { return r.Get(logfield.DstZone) }
func (r Route) RouteNetwork() string { return r.Get(logfield.RouteNetwork) }
func (r Route) RouteNetmask() int    { return r.Int(logfield.RouteNetmask) }
func (r Route) RouteMetric() int     { return r.Int(logfield.RouteMetric) }

// RouteType returns the kind of route: Static, Connected, Dynamic
func (r Route) RouteType() string { return r.Get(logfield.RouteType) }

func (r Route) String() string {
	return fmt.Sprintf("Route(dest_if=%s,network=%s,type=%s)", r.DestIf(), r.RouteNetwork(), r.RouteType())
}

// User is an entry of the user cache of an engine
type User struct{ Entry }

// Username returns the fully qualified user name
func (u User) Username() string   { return u.Get(logfield.Username) }
func (u User) IPAddress() string  { return u.Get(logfield.Src) }
func (u User) Domain() string     { return u.Get(logfield.SenderDomain) }
func (u User) Expiration() string { return u.Get(logfield.ExpirationTime) }

func (u User) String() string {
	return fmt.Sprintf("User(id=%s,ipaddress=%s,expiration=%s)", u.Username(), u.IPAddress(), u.Expiration())
}

// VPNSecurityAssoc is a connected VPN endpoint. A tunnel usually has an IKE
// and an IPsec association.
type VPNSecurityAssoc struct{ Entry }

func (v VPNSecurityAssoc) VPNID() string           { return v.Get(logfield.VPNID) }
func (v VPNSecurityAssoc) LocalGateway() string    { return v.Get(logfield.SecurityGateway) }
func (v VPNSecurityAssoc) PeerGateway() string     { return v.Get(logfield.PeerSecurityGateway) }
func (v VPNSecurityAssoc) LocalEndpoint() string   { return v.Get(logfield.EndPoint) }
func (v VPNSecurityAssoc) PeerEndpoint() string    { return v.Get(logfield.PeerEndPoint) }
func (v VPNSecurityAssoc) LocalNetworks() string   { return v.Get(logfield.SrcAddrs) }
func (v VPNSecurityAssoc) PeerNetworks() string    { return v.Get(logfield.DstAddrs) }
func (v VPNSecurityAssoc) SAType() string          { return v.Get(logfield.SAClass) }
func (v VPNSecurityAssoc) Protocol() string        { return v.Get(logfield.Protocol) }
func (v VPNSecurityAssoc) NegotiationRole() string { return v.Get(logfield.NegotiationRole) }
func (v VPNSecurityAssoc) BytesSent() int          { return v.Int(logfield.NumBytesSent) }
func (v VPNSecurityAssoc) BytesReceived() int      { return v.Int(logfield.NumBytesReceived) }
func (v VPNSecurityAssoc) Expiration() string      { return v.Get(logfield.ExpirationTime) }

func (v VPNSecurityAssoc) String() string {
	return fmt.Sprintf("VPNSecurityAssoc(local=%s,peer=%s,localip=%s,peerip=%s,satype=%s)",
		v.LocalGateway(), v.PeerGateway(), v.LocalEndpoint(), v.PeerEndpoint(), v.SAType())
}

// SSLVPNUser is a running SSL VPN session
type SSLVPNUser struct{ Entry }

func (u SSLVPNUser) SourceAddr() string        { return u.Get(logfield.Src) }
func (u SSLVPNUser) Username() string          { return u.Get(logfield.Username) }
func (u SSLVPNUser) SessionStart() string      { return u.Get(logfield.SSLVPNSessionMonReceived) }
func (u SSLVPNUser) SessionExpiration() string { return u.Get(logfield.SSLVPNSessionMonTimeout) }

func (u SSLVPNUser) String() string {
	return fmt.Sprintf("SSLVPNUser(user=%s,ipaddress=%s,session_start=%s)", u.Username(), u.SourceAddr(), u.SessionStart())
}
