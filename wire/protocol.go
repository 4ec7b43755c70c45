package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// A Request is sent from client to server as the first WS message of a
// monitoring query.
//
// Format is anything that marshals into the format sub-document.
type Request struct {
	Query  map[string]any `json:"query"`
	Fetch  map[string]any `json:"fetch"`
	Format any            `json:"format"`
}

// Context is sent from client to server to open or extend a notification
// subscription. Context is a comma separated list of entry points.
type Context struct {
	Context string `json:"context"`
}

// Abort asks the server to release the resources of a running fetch
type Abort struct {
	Abort json.RawMessage `json:"abort"`
}

// Message is a frame sent from server to client.
//
// A frame is recognized by which of the keys are present. Presence of a key is
// tracked independently of its value: a key carrying JSON null is still
// present.
type Message struct {
	// Assigns the fetch id used for a later abort
	Fetch json.RawMessage `json:"fetch,omitempty"`

	// Acknowledgement, also opens a notification subscription
	Success json.RawMessage `json:"success,omitempty"`

	// Reports a fatal error. No more records follow.
	Failure json.RawMessage `json:"failure,omitempty"`

	// New data
	Records *Records `json:"records,omitempty"`

	// Field metadata of a detailed query
	Fields []Field `json:"fields,omitempty"`

	// The stream is complete
	End json.RawMessage `json:"end,omitempty"`

	// Notification subscription
	Context        json.RawMessage `json:"context,omitempty"`
	SubscriptionID json.RawMessage `json:"subscription_id,omitempty"`
	Events         []Event         `json:"events,omitempty"`

	// The frame as received
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = Message(p)
	m.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// HasFetch reports whether the frame assigns a fetch id
func (m Message) HasFetch() bool {
	return len(m.Fetch) != 0
}

// HasSuccess reports whether the frame is an acknowledgement
func (m Message) HasSuccess() bool {
	return len(m.Success) != 0
}

// HasFailure reports whether the frame reports a failure
func (m Message) HasFailure() bool {
	return len(m.Failure) != 0
}

// HasEnd reports whether the frame completes the stream
func (m Message) HasEnd() bool {
	return len(m.End) != 0
}

// FailureReason returns the failure message
func (m Message) FailureReason() string {
	return Text(m.Failure)
}

// EndReason returns the reason given for the end of the stream
func (m Message) EndReason() string {
	return Text(m.End)
}

// ContextName returns the notification context of a success frame
func (m Message) ContextName() string {
	return Text(m.Context)
}

// Subscription returns the subscription id of the frame, empty if absent
func (m Message) Subscription() string {
	return Text(m.SubscriptionID)
}

// Added returns the records added by the frame, nil if there are none
func (m Message) Added() []Record {
	if m.Records == nil {
		return nil
	}
	return m.Records.Added
}

// Text returns a JSON string value unquoted and any other JSON value as is.
// JSON null and absent values are empty.
func Text(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Records is the payload of a records frame. Depending on the query type the
// server sends either {"added": [...]} or a bare list.
type Records struct {
	Added []Record

	// Bare list form
	List []Record
}

// IsList reports whether the records arrived in bare list form
func (r Records) IsList() bool {
	return r.List != nil
}

// UnmarshalJSON implements json.Unmarshaler
func (r *Records) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		list := []Record{}
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("failed to decode records list: %w", err)
		}
		*r = Records{List: list}
		return nil
	}
	var obj struct {
		Added []Record `json:"added"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return fmt.Errorf("failed to decode records: %w", err)
	}
	*r = Records{Added: obj.Added}
	return nil
}

// MarshalJSON implements json.Marshaler
func (r Records) MarshalJSON() ([]byte, error) {
	if r.List != nil {
		return json.Marshal(r.List)
	}
	return json.Marshal(struct {
		Added []Record `json:"added"`
	}{Added: r.Added})
}

// Record is a single result entry, keyed by field id, name or pretty name
// depending on the requested field format
type Record map[string]any

// String returns the value of the key as a string, empty if absent
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Lookup returns the value of the key as a string and whether the key is set
func (r Record) Lookup(key string) (string, bool) {
	if _, ok := r[key]; !ok {
		return "", false
	}
	return r.String(key), true
}

// Sub returns a nested record, nil if the key does not hold an object
func (r Record) Sub(key string) Record {
	m, _ := r[key].(map[string]any)
	return m
}

// Field describes a log field
type Field struct {
	ID     int    `json:"id"`
	Name   string `json:"name,omitempty"`
	Pretty string `json:"pretty,omitempty"`
	Type   string `json:"type,omitempty"`
}

// Header returns the label of the field under the given field format: "id",
// "name" or "pretty". Unknown formats yield an empty label.
func (f Field) Header(fieldFormat string) string {
	switch fieldFormat {
	case "id":
		return fmt.Sprint(f.ID)
	case "name":
		return f.Name
	case "pretty":
		return f.Pretty
	default:
		return ""
	}
}

// Event is a single change published on the notification socket
type Event struct {
	Type    string `json:"type"`
	Element string `json:"element"`
}
