// Package conflict reconciles diverging local and server versions of one entity.
package conflict

import (
	"errors"
	"fmt"
	"maps"
	"strings"
)

// ErrUnknownStrategy is returned by ParseStrategy.
var ErrUnknownStrategy = errors.New("conflict: unknown strategy")

// Strategy selects which side wins.
type Strategy string

const (
	// Local keeps the device's version.
	Local Strategy = "local"
	// Server keeps the server's version.
	Server Strategy = "server"
	// Merge overlays server fields onto local fields.
	Merge Strategy = "merge"
)

// DefaultStrategy is used when none is configured.
const DefaultStrategy = Server

// ParseStrategy normalizes s. An empty string yields DefaultStrategy.
func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case "":
		return DefaultStrategy, nil
	case Local, Server, Merge:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Resolve returns the reconciled version. It never looks at timestamps; when
// to resolve is the caller's decision. Merge is shallow and returns a new map,
// so neither input is modified. An unknown strategy behaves like Server.
func Resolve(local, server map[string]any, strategy Strategy) map[string]any {
	switch strategy {
	case Local:
		return local
	case Merge:
		out := make(map[string]any, len(local)+len(server))
		maps.Copy(out, local)
		maps.Copy(out, server)
		return out
	default:
		return server
	}
}
