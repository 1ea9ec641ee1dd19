package wire

import (
	"strconv"
)

// Node wraps one position of a pblite structure: entities arrive as JSON
// arrays indexed by implicit field number rather than named objects.
// All accessors are null-safe, so callers can chain lookups without
// distinguishing "position holds null" from "position is absent".
type Node struct {
	v any
}

// NodeOf wraps an already-parsed JSON value. Used by tests and by the
// streaming channel, whose frames arrive pre-parsed.
func NodeOf(v any) Node {
	return Node{v: v}
}

// IsNull reports whether the node holds no value.
func (n Node) IsNull() bool {
	return n.v == nil
}

// Len returns the array length, or 0 when the node is not an array.
func (n Node) Len() int {
	if arr, ok := n.v.([]any); ok {
		return len(arr)
	}
	return 0
}

// Index returns the element at position i. Out-of-range positions and
// non-array nodes yield a null node, never a panic.
func (n Node) Index(i int) Node {
	arr, ok := n.v.([]any)
	if !ok || i < 0 || i >= len(arr) {
		return Node{}
	}
	return Node{v: arr[i]}
}

// List returns the array elements, or nil for non-array nodes.
func (n Node) List() []Node {
	arr, ok := n.v.([]any)
	if !ok {
		return nil
	}
	out := make([]Node, len(arr))
	for i, e := range arr {
		out[i] = Node{v: e}
	}
	return out
}

// Str returns the string value, or "" for anything else.
func (n Node) Str() string {
	s, _ := n.v.(string)
	return s
}

// Int returns the integer value. Numbers arrive either as JSON numbers or
// as decimal strings (64-bit values exceed JSON's safe float range, so the
// service stringifies them); both are handled.
func (n Node) Int() int64 {
	switch v := n.v.(type) {
	case float64:
		return int64(v)
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

// Bool returns the boolean value. The service encodes flags as true/false,
// 0/1, or "0"/"1" depending on the endpoint.
func (n Node) Bool() bool {
	switch v := n.v.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v == "1" || v == "true"
	default:
		return false
	}
}

// Raw returns the underlying parsed JSON value.
func (n Node) Raw() any {
	return n.v
}
