package filter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Filter types
const (
	TypeIn         = "in"
	TypeAnd        = "and"
	TypeOr         = "or"
	TypeNot        = "not"
	TypeDefined    = "defined"
	TypeCSLike     = "cs_like"
	TypeTranslated = "translated"
)

// Filter is a node of a filter expression tree.
//
// Every filter marshals into an object carrying "type" plus node-specific
// keys. Updating a node replaces all of its non-type keys at once.
type Filter interface {
	json.Marshaler
	Type() string
}

func first(v Value) *Fragment {
	if v == nil {
		return nil
	}
	fragments := v.Fragments()
	if len(fragments) == 0 {
		return nil
	}
	f := fragments[0]
	return &f
}

// In matches when the left comparand equals any of the right ones
type In struct {
	Left  *Fragment
	Right []Fragment
}

// NewIn creates an In filter.
//
// Only the first fragment of left is used: a left value listing several
// fields compares the first of them. Every fragment of every right value is
// used, in order.
func NewIn(left Value, right ...Value) *In {
	return (&In{}).Update(left, right...)
}

// Update replaces both sides of the filter
func (f *In) Update(left Value, right ...Value) *In {
	f.Left = first(left)
	f.Right = []Fragment{}
	for _, v := range right {
		f.Right = append(f.Right, v.Fragments()...)
	}
	return f
}

// Type implements Filter
func (f *In) Type() string {
	return TypeIn
}

// MarshalJSON implements json.Marshaler
func (f *In) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": TypeIn, "right": f.Right}
	if f.Left != nil {
		out["left"] = f.Left
	}
	if f.Right == nil {
		out["right"] = []Fragment{}
	}
	return json.Marshal(out)
}

// Composite combines child filters: all of them (And) or any of them (Or)
type Composite struct {
	typ      string
	children []Filter
	set      bool
}

// NewAnd creates a filter matching when all children match.
//
// Without children the filter carries no values until Update is called.
func NewAnd(children ...Filter) *Composite {
	return newComposite(TypeAnd, children)
}

// NewOr creates a filter matching when any of the children matches
func NewOr(children ...Filter) *Composite {
	return newComposite(TypeOr, children)
}

func newComposite(typ string, children []Filter) *Composite {
	c := &Composite{typ: typ}
	if len(children) > 0 {
		c.Update(children...)
	}
	return c
}

// Update replaces the children
func (c *Composite) Update(children ...Filter) *Composite {
	c.children = append([]Filter{}, children...)
	c.set = true
	return c
}

// Children returns the children in order
func (c *Composite) Children() []Filter {
	return append([]Filter(nil), c.children...)
}

// Type implements Filter
func (c *Composite) Type() string {
	return c.typ
}

// MarshalJSON implements json.Marshaler
func (c *Composite) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": c.typ}
	if c.set {
		out["values"] = c.children
	}
	return json.Marshal(out)
}

// Not negates a single child filter
type Not struct {
	Child Filter
}

// NewNot creates a Not filter negating the first of the given children.
// Any further children are ignored.
func NewNot(children ...Filter) *Not {
	return (&Not{}).Update(children...)
}

// Update replaces the negated child with the first of the given children
func (f *Not) Update(children ...Filter) *Not {
	f.Child = nil
	if len(children) > 0 {
		f.Child = children[0]
	}
	return f
}

// Type implements Filter
func (f *Not) Type() string {
	return TypeNot
}

// MarshalJSON implements json.Marshaler
func (f *Not) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": TypeNot}
	if f.Child != nil {
		out["value"] = f.Child
	}
	return json.Marshal(out)
}

// Defined matches records where the value is set
type Defined struct {
	Value *Fragment
}

// NewDefined creates a Defined filter on the first fragment of the value.
// A nil value leaves the filter empty until Update is called.
func NewDefined(v Value) *Defined {
	return (&Defined{}).Update(v)
}

// Update replaces the tested value
func (f *Defined) Update(v Value) *Defined {
	f.Value = first(v)
	return f
}

// Type implements Filter
func (f *Defined) Type() string {
	return TypeDefined
}

// MarshalJSON implements json.Marshaler
func (f *Defined) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": TypeDefined}
	if f.Value != nil {
		out["value"] = f.Value
	}
	return json.Marshal(out)
}

// Like is a LIKE string match
type Like struct {
	caseInsensitive bool

	Left  *Fragment
	Right *Fragment
}

// NewCSLike creates a case sensitive LIKE filter
func NewCSLike() *Like {
	return &Like{}
}

// NewCILike creates a case insensitive LIKE filter.
//
// The server tag of the case insensitive variant is not confirmed, so it is
// sent as cs_like.
func NewCILike() *Like {
	return &Like{caseInsensitive: true}
}

// CaseInsensitive reports whether the filter was created by NewCILike
func (f *Like) CaseInsensitive() bool {
	return f.caseInsensitive
}

// Update replaces the matched field and the pattern
func (f *Like) Update(left, right Value) *Like {
	f.Left = first(left)
	f.Right = first(right)
	return f
}

// Type implements Filter
func (f *Like) Type() string {
	return TypeCSLike
}

// MarshalJSON implements json.Marshaler
func (f *Like) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": TypeCSLike}
	if f.Left != nil {
		out["left"] = f.Left
	}
	if f.Right != nil {
		out["right"] = f.Right
	}
	return json.Marshal(out)
}

// Translated is a free-form expression using the internal field aliases
// shown by the log viewer ("$Src", "$Dst")
type Translated struct {
	Expr string
}

// NewTranslated creates an empty translated filter
func NewTranslated() *Translated {
	return &Translated{}
}

// WithinIPv4Network matches the field against networks in CIDR notation
func (f *Translated) WithinIPv4Network(field string, networks ...string) *Translated {
	f.Expr = fmt.Sprintf("%s IN union(%s)", field, calls("ipv4_net", networks))
	return f
}

// WithinIPv4Range matches the field against an "A-B" address range.
//
// Endpoints of every given range are concatenated into a single range term,
// which is meaningful for exactly one range.
func (f *Translated) WithinIPv4Range(field string, ranges ...string) *Translated {
	var endpoints []string
	for _, r := range ranges {
		endpoints = append(endpoints, strings.Split(r, "-")...)
	}
	f.Expr = fmt.Sprintf("%s IN range(%s)", field, calls("ipv4", endpoints))
	return f
}

// ExactIPv4Match matches the field against a single address, or against a
// union when more than one address is given
func (f *Translated) ExactIPv4Match(field string, addrs ...string) *Translated {
	if len(addrs) == 1 {
		f.Expr = fmt.Sprintf(`%s == ipv4(%q)`, field, addrs[0])
		return f
	}
	f.Expr = fmt.Sprintf("%s IN union(%s)", field, calls("ipv4", addrs))
	return f
}

// Type implements Filter
func (f *Translated) Type() string {
	return TypeTranslated
}

// MarshalJSON implements json.Marshaler
func (f *Translated) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": TypeTranslated}
	if f.Expr != "" {
		out["value"] = f.Expr
	}
	return json.Marshal(out)
}

func calls(fn string, args []string) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, fmt.Sprintf("%s(%q)", fn, arg))
	}
	return strings.Join(parts, ",")
}
