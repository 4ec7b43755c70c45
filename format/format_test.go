package format

import (
	"encoding/json"
	"testing"

	"github.com/ridge/must/v2"
	"github.com/ridge/tj"
	"github.com/stretchr/testify/require"
)

func requireJSON(t *testing.T, expected any, actual any) {
	t.Helper()
	require.JSONEq(t, string(must.OK1(json.Marshal(expected))), string(must.OK1(json.Marshal(actual))))
}

func TestText(t *testing.T) {
	f := NewText(FieldFormatPretty)
	requireJSON(t, tj.O{"type": "texts", "field_format": "pretty", "resolving": tj.O{"senders": true}}, f)
	require.Equal(t, TypeTexts, f.Type())

	f.Timezone("CST")
	requireJSON(t, tj.O{
		"type":         "texts",
		"field_format": "pretty",
		"resolving":    tj.O{"senders": true, "timezone": "CST", "time_show_zone": true},
	}, f)
}

func TestSetResolving(t *testing.T) {
	f := NewText(FieldFormatName).SetResolving(map[string]any{"timezone": "Europe/Helsinki"})
	require.Equal(t, map[string]any{"senders": true, "timezone": "Europe/Helsinki", "time_show_zone": true}, f.Resolving())

	f = NewText(FieldFormatName).SetResolving(map[string]any{"timezone": "PST", "time_show_zone": false, "senders": false})
	require.Equal(t, map[string]any{"senders": false, "timezone": "PST", "time_show_zone": false}, f.Resolving())
}

func TestDetailed(t *testing.T) {
	f := NewDetailed(FieldFormatPretty)
	f.SetFieldIDs(1, 7)
	requireJSON(t, tj.O{
		"type":         "detailed",
		"field_format": "pretty",
		"field_ids":    tj.A{1, 7},
		"resolving":    tj.O{"senders": true},
	}, f)
	require.Equal(t, []int{1, 7}, f.FieldIDs())
}

func TestFieldSelection(t *testing.T) {
	f := NewText(FieldFormatPretty)
	require.NoError(t, f.SetFieldFormat(FieldFormatID))
	require.ErrorIs(t, f.SetFieldFormat("combined"), ErrFieldFormat)
	require.Equal(t, FieldFormatID, f.FieldFormat())

	f.SetFieldNames("Src", "Dst")
	f.SetFieldIDs(1)
	requireJSON(t, tj.O{
		"type":         "texts",
		"field_format": "id",
		"field_ids":    tj.A{1},
		"field_names":  tj.A{"Src", "Dst"},
		"resolving":    tj.O{"senders": true},
	}, f)

	f.ClearFieldSelection()
	requireJSON(t, tj.O{"type": "texts", "field_format": "id", "resolving": tj.O{"senders": true}}, f)
	require.Nil(t, f.FieldIDs())
}

func TestRaw(t *testing.T) {
	f := NewRaw(FieldFormatName)
	requireJSON(t, tj.O{"type": "raw", "field_format": "name"}, f)
}

func TestCombined(t *testing.T) {
	text := NewText(FieldFormatPretty)
	text.SetFieldIDs(1)
	detailed := NewDetailed(FieldFormatPretty)
	detailed.SetFieldIDs(7, 8)

	f := NewCombined(map[string]Format{"tformat": text, "dformat": detailed})
	requireJSON(t, tj.O{
		"type": "combined",
		"formats": tj.O{
			"tformat": tj.O{"type": "texts", "field_format": "pretty", "field_ids": tj.A{1}, "resolving": tj.O{"senders": true}},
			"dformat": tj.O{"type": "detailed", "field_format": "pretty", "field_ids": tj.A{7, 8}, "resolving": tj.O{"senders": true}},
		},
	}, f)
	require.Empty(t, f.FieldFormat())
	require.Nil(t, f.FieldIDs())
}

func TestClone(t *testing.T) {
	text := NewText(FieldFormatPretty)
	text.SetFieldIDs(1)
	combined := NewCombined(map[string]Format{"t": text})

	clone := combined.Clone().(*Combined)
	cloned := clone.Formats()["t"].(*Text)
	cloned.SetFieldIDs(2)
	cloned.Timezone("UTC")

	require.Equal(t, []int{1}, text.FieldIDs())
	require.NotContains(t, text.Resolving(), "timezone")
	require.Equal(t, []int{2}, cloned.FieldIDs())
}
