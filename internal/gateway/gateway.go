// Package gateway presents one CRUD surface per secret kind, dispatched
// internally to either the remote service or the local embedded store.
// Callers never learn which backend served a request: both speak typed
// records and both apply the record codec exactly once in each direction.
package gateway

import (
	"context"

	"github.com/zecrypt/zecrypt-go/internal/records"
)

// Result is the normalized outcome of every gateway call. Domain failures
// (transport, auth, missing rows) come back inside the result instead of an
// error return, so a caller can never crash on an unhandled failure path.
type Result struct {
	Success bool
	Records []*records.Record
	Err     error
}

// OK wraps records in a successful result.
func OK(recs ...*records.Record) Result {
	return Result{Success: true, Records: recs}
}

// Fail wraps err in a failed result.
func Fail(err error) Result {
	return Result{Err: err}
}

// First returns the first record, or nil for empty results.
func (r Result) First() *records.Record {
	if len(r.Records) == 0 {
		return nil
	}
	return r.Records[0]
}

// Gateway is the backend-agnostic CRUD contract. The kind tag routes to the
// per-kind codec and resource; it is always carried explicitly.
type Gateway interface {
	List(ctx context.Context, kind records.Kind, projectID string) Result
	Create(ctx context.Context, kind records.Kind, rec *records.Record) Result
	Update(ctx context.Context, kind records.Kind, id string, rec *records.Record) Result
	Delete(ctx context.Context, kind records.Kind, projectID, id string) Result
}

// KeySource resolves the project key used by the codec. A vault miss is a
// degraded mode (plaintext storage, sentinel display), never a hard failure.
type KeySource interface {
	GetProjectKey(ctx context.Context, project string) (string, error)
}

// KeyFor resolves the project key, mapping any miss or unwrap failure to the
// empty key so the codec degrades instead of aborting the batch.
func KeyFor(ctx context.Context, keys KeySource, projectID string) string {
	if keys == nil {
		return ""
	}
	key, err := keys.GetProjectKey(ctx, projectID)
	if err != nil {
		return ""
	}
	return key
}

// Mode selects the active backend.
type Mode int

const (
	// ModeRemote routes to the authenticated remote service.
	ModeRemote Mode = iota
	// ModeLocal routes to the offline embedded store.
	ModeLocal
)

// Router dispatches each call to the gateway for the active operating mode.
// The mode function is consulted per call, so a surface flipping between
// online and offline needs no gateway rebuild.
type Router struct {
	remote Gateway
	local  Gateway
	mode   func() Mode
}

// NewRouter builds a router over the two backends.
func NewRouter(remote, local Gateway, mode func() Mode) *Router {
	return &Router{remote: remote, local: local, mode: mode}
}

func (r *Router) active() Gateway {
	if r.mode() == ModeLocal {
		return r.local
	}
	return r.remote
}

func (r *Router) List(ctx context.Context, kind records.Kind, projectID string) Result {
	return r.active().List(ctx, kind, projectID)
}

func (r *Router) Create(ctx context.Context, kind records.Kind, rec *records.Record) Result {
	return r.active().Create(ctx, kind, rec)
}

func (r *Router) Update(ctx context.Context, kind records.Kind, id string, rec *records.Record) Result {
	return r.active().Update(ctx, kind, id, rec)
}

func (r *Router) Delete(ctx context.Context, kind records.Kind, projectID, id string) Result {
	return r.active().Delete(ctx, kind, projectID, id)
}
