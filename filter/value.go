package filter

import (
	"encoding/json"
)

// Fragment types
const (
	FragmentField    = "field"
	FragmentIP       = "ip"
	FragmentService  = "service"
	FragmentConstant = "constant"
	FragmentString   = "string"
	FragmentElement  = "element"
)

// Fragment is a single comparand of a filter: a field reference or a literal
type Fragment struct {
	Type string

	// Field reference by id, used when Name is empty
	ID int

	// Field reference by name
	Name string

	// Element reference
	Href string

	// Literal value
	Value any
}

// MarshalJSON implements json.Marshaler
func (f Fragment) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": f.Type}
	switch f.Type {
	case FragmentField:
		if f.Name != "" {
			out["name"] = f.Name
		} else {
			out["id"] = f.ID
		}
	case FragmentElement:
		out["href"] = f.Href
	default:
		out["value"] = f.Value
	}
	return json.Marshal(out)
}

// Value is a source of one or more fragments
type Value interface {
	Fragments() []Fragment
}

// Values is a Value made of literal fragments
type Values []Fragment

// Fragments implements Value
func (v Values) Fragments() []Fragment {
	return v
}

// Fields references log fields by numeric id
func Fields(ids ...int) Values {
	v := make(Values, 0, len(ids))
	for _, id := range ids {
		v = append(v, Fragment{Type: FragmentField, ID: id})
	}
	return v
}

// FieldNames references log fields by their internal names ("Src", "Dst")
func FieldNames(names ...string) Values {
	v := make(Values, 0, len(names))
	for _, name := range names {
		v = append(v, Fragment{Type: FragmentField, Name: name})
	}
	return v
}

// IPs matches addresses or networks ("1.1.1.1", "10.0.0.0/8")
func IPs(addrs ...string) Values {
	return literals(FragmentIP, addrs)
}

// Services matches services given as protocol/port ("TCP/80") or
// ICMP/type/code
func Services(services ...string) Values {
	return literals(FragmentService, services)
}

// Strings matches string fields exactly
func Strings(values ...string) Values {
	return literals(FragmentString, values)
}

// Constants matches log field constants such as actions
func Constants(values ...int) Values {
	return literals(FragmentConstant, values)
}

// Elements references management server elements by href
func Elements(hrefs ...string) Values {
	v := make(Values, 0, len(hrefs))
	for _, href := range hrefs {
		v = append(v, Fragment{Type: FragmentElement, Href: href})
	}
	return v
}

func literals[T any](typ string, values []T) Values {
	v := make(Values, 0, len(values))
	for _, value := range values {
		v = append(v, Fragment{Type: typ, Value: value})
	}
	return v
}
