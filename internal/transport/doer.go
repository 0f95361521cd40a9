package transport

import (
	"context"
	"encoding/json"
)

//go:generate mockgen -destination=mocks/mock_doer.go -package=mocks -source=doer.go Doer

// Request is one replayed queue item. Endpoint, Method and Payload are passed
// through untouched.
type Request struct {
	Method   string
	Endpoint string
	Payload  json.RawMessage
}

// Doer executes a Request against the server. A nil error means the server
// accepted the mutation.
type Doer interface {
	Do(ctx context.Context, req Request) error
}
