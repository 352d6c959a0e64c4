// Package chain is a small Sui JSON-RPC client covering the calls the
// portfolio needs: object reads, owner and type queries, and signed Move
// calls.
package chain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrObjectNotFound is returned when the node reports no object for an id.
	ErrObjectNotFound = errors.New("object not found")
	// ErrNoSigner is returned by SubmitMutation when no signing key is configured.
	ErrNoSigner = errors.New("no signer configured")
)

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Object is a remote object as far as the portfolio cares: its id, its Move
// type and the raw content fields. Raw keeps the whole payload for callers
// that need more.
type Object struct {
	ID     string
	Type   string
	Fields map[string]any
	Raw    map[string]any
}

// HasContent reports whether the fetch returned object content.
func (o Object) HasContent() bool {
	return len(o.Fields) > 0
}

// MoveCall identifies one entry point call and its ordered arguments.
type MoveCall struct {
	Package   string
	Module    string
	Function  string
	Arguments []any
}

// Target renders the call as package::module::function.
func (c MoveCall) Target() string {
	return c.Package + "::" + c.Module + "::" + c.Function
}

// MutationResult is the executed transaction as returned by the node.
type MutationResult struct {
	Digest        string
	Events        []map[string]any
	Effects       map[string]any
	ObjectChanges []map[string]any
	Raw           map[string]any
}

// TypeTag is a parsed package::module::Struct string.
type TypeTag struct {
	Package string
	Module  string
	Name    string
}

func (t TypeTag) String() string {
	return t.Package + "::" + t.Module + "::" + t.Name
}

// ShortName is module::Struct, the part that survives package upgrades.
func (t TypeTag) ShortName() string {
	return t.Module + "::" + t.Name
}

// ParseTypeTag splits a fully qualified struct tag.
func ParseTypeTag(tag string) (TypeTag, error) {
	base := tag
	if i := strings.Index(base, "<"); i >= 0 {
		base = base[:i]
	}
	parts := strings.Split(base, "::")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return TypeTag{}, fmt.Errorf("malformed type tag %q", tag)
	}
	return TypeTag{Package: parts[0], Module: parts[1], Name: parts[2]}, nil
}

// IsAddress reports whether s looks like a 0x-prefixed hex address or id.
func IsAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") || len(s) < 3 || len(s) > 66 {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
