// Package logfield lists the numeric ids of the log fields used by the
// monitors. Records fetched with the id field format are keyed by these ids
// in decimal.
package logfield

import (
	"strconv"
)

// Log field ids
const (
	Timestamp                = 1
	NodeID                   = 3
	CompID                   = 4
	Src                      = 7
	Dst                      = 8
	Sport                    = 9
	Dport                    = 10
	Protocol                 = 11
	DstIf                    = 13
	Action                   = 14
	ReceptionTime            = 24
	Service                  = 27
	DataType                 = 34
	SenderDomain             = 38
	SrcZone                  = 46
	DstZone                  = 47
	State                    = 116
	RouteNetwork             = 160
	RouteNetmask             = 161
	RouteMetric              = 163
	RouteType                = 165
	SessionEvent             = 302
	DataTags                 = 485
	VPNID                    = 501
	SecurityGateway          = 502
	EndPoint                 = 504
	PeerSecurityGateway      = 505
	PeerEndPoint             = 506
	ExpirationTime           = 534
	SAClass                  = 535
	NegotiationRole          = 539
	NumBytesSent             = 548
	NumBytesReceived         = 549
	SSLVPNSessionMonReceived = 809
	SSLVPNSessionMonTimeout  = 810
	HTTPRequestHost          = 1586
	Username                 = 3001
	SrcAddrs                 = 20007
	DstAddrs                 = 20008
)

// Values of the Action field
const (
	ActionDiscard = 0
	ActionBlock   = 13
)

// Key returns the record key of a field in the id field format
func Key(id int) string {
	return strconv.Itoa(id)
}
