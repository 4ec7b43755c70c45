// Package format describes the shape of the data returned by a monitoring
// query: field labels, field selection and value resolving.
package format

import (
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Format types
const (
	TypeTexts    = "texts"
	TypeDetailed = "detailed"
	TypeRaw      = "raw"
	TypeCombined = "combined"
)

// Field formats: how field keys are labeled in the returned records
const (
	FieldFormatID     = "id"
	FieldFormatName   = "name"
	FieldFormatPretty = "pretty"
)

// ErrFieldFormat is returned when setting an unknown field format
var ErrFieldFormat = errors.New("field format must be one of id, name, pretty")

// Format is the format sub-document of a query request
type Format interface {
	json.Marshaler

	// Type returns the format type
	Type() string

	// FieldFormat returns the field format, empty for formats without one
	FieldFormat() string

	// FieldIDs returns the selected field ids, nil when no selection is made
	FieldIDs() []int

	// Clone returns a deep copy
	Clone() Format
}

// Selectable is a Format with a field format and a field selection
type Selectable interface {
	Format

	SetFieldFormat(fieldFormat string) error
	SetFieldIDs(ids ...int)
	SetFieldNames(names ...string)
	ClearFieldSelection()
}

// ValidFieldFormat reports whether the field format is known
func ValidFieldFormat(fieldFormat string) bool {
	switch fieldFormat {
	case FieldFormatID, FieldFormatName, FieldFormatPretty:
		return true
	default:
		return false
	}
}

type selection struct {
	fieldFormat string
	ids         []int
	names       []string
}

// FieldFormat returns the field format
func (s *selection) FieldFormat() string {
	return s.fieldFormat
}

// FieldIDs returns the selected field ids
func (s *selection) FieldIDs() []int {
	return slices.Clone(s.ids)
}

// FieldNames returns the selected field names
func (s *selection) FieldNames() []string {
	return slices.Clone(s.names)
}

// SetFieldFormat sets how field keys are labeled: id, name or pretty
func (s *selection) SetFieldFormat(fieldFormat string) error {
	if !ValidFieldFormat(fieldFormat) {
		return fmt.Errorf("%w: %q", ErrFieldFormat, fieldFormat)
	}
	s.fieldFormat = fieldFormat
	return nil
}

// SetFieldIDs restricts the returned fields to the given ids.
//
// When both ids and names are selected the server merges them.
func (s *selection) SetFieldIDs(ids ...int) {
	s.ids = slices.Clone(ids)
}

// SetFieldNames restricts the returned fields to the given internal names
func (s *selection) SetFieldNames(names ...string) {
	s.names = slices.Clone(names)
}

// ClearFieldSelection drops both field id and field name selections
func (s *selection) ClearFieldSelection() {
	s.ids = nil
	s.names = nil
}

func (s *selection) clone() selection {
	return selection{fieldFormat: s.fieldFormat, ids: slices.Clone(s.ids), names: slices.Clone(s.names)}
}

func (s *selection) encode(out map[string]any) {
	out["field_format"] = s.fieldFormat
	if s.ids != nil {
		out["field_ids"] = s.ids
	}
	if s.names != nil {
		out["field_names"] = s.names
	}
}

// Text converts values the way the log viewer shows them
type Text struct {
	selection
	typ       string
	resolving map[string]any
}

// NewText creates a texts format. Resolving of senders is on.
func NewText(fieldFormat string) *Text {
	return &Text{
		selection: selection{fieldFormat: fieldFormat},
		typ:       TypeTexts,
		resolving: map[string]any{"senders": true},
	}
}

// NewDetailed creates a detailed format: values are not converted, and the
// first frame carries the metadata of the returned fields
func NewDetailed(fieldFormat string) *Text {
	t := NewText(fieldFormat)
	t.typ = TypeDetailed
	return t
}

// Type implements Format
func (t *Text) Type() string {
	return t.typ
}

// Timezone shows timestamps in the given zone ("US/Eastern", "PST",
// "Europe/Helsinki")
func (t *Text) Timezone(tz string) *Text {
	t.resolving["timezone"] = tz
	t.resolving["time_show_zone"] = true
	return t
}

// SetResolving merges resolving settings. Setting a timezone turns
// time_show_zone on unless it is given explicitly.
func (t *Text) SetResolving(settings map[string]any) *Text {
	_, hasTZ := settings["timezone"]
	_, hasShowZone := settings["time_show_zone"]
	if hasTZ && !hasShowZone {
		t.resolving["time_show_zone"] = true
	}
	maps.Copy(t.resolving, settings)
	return t
}

// Resolving returns a copy of the resolving settings
func (t *Text) Resolving() map[string]any {
	return maps.Clone(t.resolving)
}

// Clone implements Format
func (t *Text) Clone() Format {
	return &Text{selection: t.selection.clone(), typ: t.typ, resolving: maps.Clone(t.resolving)}
}

// MarshalJSON implements json.Marshaler
func (t *Text) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": t.typ, "resolving": t.resolving}
	t.encode(out)
	return json.Marshal(out)
}

// Raw is an abbreviated detailed format without value resolution
type Raw struct {
	selection
}

// NewRaw creates a raw format
func NewRaw(fieldFormat string) *Raw {
	return &Raw{selection: selection{fieldFormat: fieldFormat}}
}

// Type implements Format
func (r *Raw) Type() string {
	return TypeRaw
}

// Clone implements Format
func (r *Raw) Clone() Format {
	return &Raw{selection: r.selection.clone()}
}

// MarshalJSON implements json.Marshaler
func (r *Raw) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": TypeRaw}
	r.encode(out)
	return json.Marshal(out)
}

// Combined applies a different format per key. Each returned record holds one
// sub-record per key.
type Combined struct {
	formats map[string]Format
}

// NewCombined creates a combined format from formats by key
func NewCombined(formats map[string]Format) *Combined {
	return &Combined{formats: maps.Clone(formats)}
}

// Formats returns the formats by key
func (c *Combined) Formats() map[string]Format {
	return maps.Clone(c.formats)
}

// Type implements Format
func (c *Combined) Type() string {
	return TypeCombined
}

// FieldFormat implements Format. Combined formats have none.
func (c *Combined) FieldFormat() string {
	return ""
}

// FieldIDs implements Format
func (c *Combined) FieldIDs() []int {
	return nil
}

// Clone implements Format
func (c *Combined) Clone() Format {
	formats := make(map[string]Format, len(c.formats))
	for k, f := range c.formats {
		formats[k] = f.Clone()
	}
	return &Combined{formats: formats}
}

// MarshalJSON implements json.Marshaler
func (c *Combined) MarshalJSON() ([]byte, error) {
	formats := c.formats
	if formats == nil {
		formats = map[string]Format{}
	}
	return json.Marshal(map[string]any{"type": TypeCombined, "formats": formats})
}
