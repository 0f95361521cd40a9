// Package network reports device connectivity to the sync coordinator.
package network

// State is one connectivity observation from the platform.
type State struct {
	Reachable   bool
	HasInternet bool
}

// Online is the value the coordinator acts on: reachable and with internet.
func (s State) Online() bool {
	return s.Reachable && s.HasInternet
}

// Offline is the zero observation.
var Offline = State{}

// Connected is a fully online observation.
var Connected = State{Reachable: true, HasInternet: true}

// Source is a connectivity signal. Subscribers are notified on every
// observation; Current returns the latest one.
type Source interface {
	Subscribe(fn func(State)) (unsubscribe func())
	Current() State
}
