package monitors

import (
	"fmt"
	"strconv"

	"github.com/ridge/smcmon/format"
	"github.com/ridge/smcmon/logfield"
	"github.com/ridge/smcmon/query"
	"github.com/ridge/smcmon/wire"
)

// Sub-formats of a blacklist query: bldata carries the entry keyed by field
// name, blid the entry id
const (
	blacklistData = "bldata"
	blacklistID   = "blid"
)

// NewBlacklistQuery lists the blacklist entries of the target. Timestamps
// are shown in timezone when it is not empty.
//
// The query uses a combined format, so its batches can only be fetched raw or
// as elements.
func NewBlacklistQuery(target, timezone string, opts ...query.Option) *Monitor[BlacklistEntry] {
	data := format.NewText(format.FieldFormatName)
	if timezone != "" {
		data.SetResolving(map[string]any{"timezone": timezone})
	}
	id := format.NewText(format.FieldFormatPretty)
	id.SetFieldNames("BlacklistEntryId")

	opts = append([]query.Option{query.Format(format.NewCombined(map[string]format.Format{
		blacklistData: data,
		blacklistID:   id,
	}))}, opts...)
	m := newMonitor(Blacklist, target, []int{logfield.Timestamp, logfield.Protocol}, decodeBlacklistEntry, opts)
	m.element = func(q *query.Query) *query.Query { return q }
	return m
}

func decodeBlacklistEntry(record wire.Record) (BlacklistEntry, bool) {
	data := record.Sub(blacklistData)
	if data == nil {
		return BlacklistEntry{}, false
	}
	entry := BlacklistEntry{}
	for k, v := range data {
		entry[k] = v
	}
	for k, v := range record.Sub(blacklistID) {
		entry[k] = v
	}
	return entry, true
}

// BlacklistEntry is an entry of the blacklist kernel table of an engine,
// keyed by field name
type BlacklistEntry wire.Record

func (b BlacklistEntry) get(key string) string {
	return wire.Record(b).String(key)
}

func (b BlacklistEntry) lookup(key string) (string, bool) {
	return wire.Record(b).Lookup(key)
}

func (b BlacklistEntry) ID() string        { return b.get("Blacklist Entry ID") }
func (b BlacklistEntry) Timestamp() string { return b.get("Timestamp") }
func (b BlacklistEntry) Engine() string    { return b.get("NodeId") }

// Href is the reference to delete the entry with
func (b BlacklistEntry) Href() string { return b.get("blacklist_href") }

// Source returns the source address and prefix length, e.g. 2.2.2.5/32
func (b BlacklistEntry) Source() string {
	return b.get("BlacklistEntrySourceIp") + "/" + b.get("BlacklistEntrySourceIpPrefixlen")
}

// Destination returns the destination address and prefix length
func (b BlacklistEntry) Destination() string {
	return b.get("BlacklistEntryDestinationIp") + "/" + b.get("BlacklistEntryDestinationIpPrefixlen")
}

// Protocol returns the blocked protocol, ANY if unset
func (b BlacklistEntry) Protocol() string {
	if p, ok := b.lookup("BlacklistEntryProtocol"); ok {
		return p
	}
	return "ANY"
}

// SourcePorts returns the blocked source port range, ANY if unset
func (b BlacklistEntry) SourcePorts() string {
	return b.ports("BlacklistEntrySourcePort", "BlacklistEntrySourcePortRange")
}

// DestPorts returns the blocked destination port range, ANY if unset
func (b BlacklistEntry) DestPorts() string {
	return b.ports("BlacklistEntryDestinationPort", "BlacklistEntryDestinationPortRange")
}

func (b BlacklistEntry) ports(start, end string) string {
	if p, ok := b.lookup(start); ok {
		return p + "-" + b.get(end)
	}
	return "ANY"
}

// Duration returns the lifetime of the entry in seconds
func (b BlacklistEntry) Duration() int {
	n, _ := strconv.Atoi(b.get("BlacklistEntryDuration"))
	return n
}

func (b BlacklistEntry) String() string {
	return fmt.Sprintf("BlacklistEntry(id=%s,src=%s,dst=%s)", b.ID(), b.Source(), b.Destination())
}
