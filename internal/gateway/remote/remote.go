// Package remote implements the gateway over the remote HTTP service:
// authenticated JSON calls against the conventional
// /{workspaceId}/{projectId}/{resource}[/{id}] path family.
package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/zecrypt/zecrypt-go/internal/common"
	"github.com/zecrypt/zecrypt-go/internal/gateway"
	"github.com/zecrypt/zecrypt-go/internal/logging"
	"github.com/zecrypt/zecrypt-go/internal/records"
)

// SessionSource supplies credentials and absorbs teardown when the backend
// rejects them.
type SessionSource interface {
	Token(ctx context.Context) (string, error)
	WorkspaceID(ctx context.Context) (string, error)
	ClientID(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// Gateway issues CRUD calls against the remote service.
type Gateway struct {
	client   *resty.Client
	sessions SessionSource
	keys     gateway.KeySource
	log      logging.Logger
}

// New builds a remote gateway rooted at baseURL.
func New(baseURL string, sessions SessionSource, keys gateway.KeySource, log logging.Logger) *Gateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Gateway{client: client, sessions: sessions, keys: keys, log: log}
}

// listResponse is the body shape of list calls.
type listResponse struct {
	Data []*records.WireRecord `json:"data"`
}

// itemResponse is the body shape of create/update calls.
type itemResponse struct {
	Data *records.WireRecord `json:"data"`
}

// request prepares an authenticated request, failing fast on a token whose
// expiry has already passed.
func (g *Gateway) request(ctx context.Context) (*resty.Request, string, error) {
	token, err := g.sessions.Token(ctx)
	if err != nil {
		return nil, "", err
	}
	ws, err := g.sessions.WorkspaceID(ctx)
	if err != nil {
		return nil, "", err
	}
	clientID, err := g.sessions.ClientID(ctx)
	if err != nil {
		return nil, "", err
	}
	req := g.client.R().SetContext(ctx).
		SetHeader(common.AccessTokenHeaderName, token).
		SetHeader(common.ClientIDHeaderName, clientID)
	return req, ws, nil
}

// check maps transport and auth failures to the shared taxonomy. A 401
// destroys the stored session before surfacing ErrAuthExpired.
func (g *Gateway) check(ctx context.Context, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		if cerr := g.sessions.Clear(ctx); cerr != nil {
			g.log.Error(ctx, "session teardown after 401 failed", "error", cerr)
		}
		return common.ErrAuthExpired
	}
	if resp.IsError() {
		return fmt.Errorf("%w: status %d", common.ErrTransport, resp.StatusCode())
	}
	return nil
}

func (g *Gateway) List(ctx context.Context, kind records.Kind, projectID string) gateway.Result {
	info, ok := records.Info(kind)
	if !ok {
		return gateway.Fail(fmt.Errorf("unknown record kind %q", kind))
	}

	req, ws, err := g.request(ctx)
	if err != nil {
		return gateway.Fail(err)
	}

	var body listResponse
	resp, err := req.SetResult(&body).Get(fmt.Sprintf("/%s/%s/%s", ws, projectID, info.Resource))
	if err := g.check(ctx, resp, err); err != nil {
		return gateway.Fail(err)
	}

	key := gateway.KeyFor(ctx, g.keys, projectID)
	recs := make([]*records.Record, 0, len(body.Data))
	for _, w := range body.Data {
		rec, err := records.FromWire(kind, w, key)
		if err != nil {
			return gateway.Fail(err)
		}
		if rec.Degraded != "" {
			g.log.Warn(ctx, "record payload degraded", "kind", kind, "doc_id", rec.DocID, "sentinel", rec.Degraded)
		}
		recs = append(recs, rec)
	}
	return gateway.OK(recs...)
}

func (g *Gateway) Create(ctx context.Context, kind records.Kind, rec *records.Record) gateway.Result {
	info, ok := records.Info(kind)
	if !ok {
		return gateway.Fail(fmt.Errorf("unknown record kind %q", kind))
	}

	key := gateway.KeyFor(ctx, g.keys, rec.ProjectID)
	w, err := records.ToWire(rec, key)
	if err != nil {
		return gateway.Fail(err)
	}
	if w.Plaintext {
		g.log.Warn(ctx, "storing payload without encryption, no project key", "kind", kind, "project", rec.ProjectID)
	}

	req, ws, err := g.request(ctx)
	if err != nil {
		return gateway.Fail(err)
	}

	var body itemResponse
	resp, err := req.SetBody(w).SetResult(&body).Post(fmt.Sprintf("/%s/%s/%s", ws, rec.ProjectID, info.Resource))
	if err := g.check(ctx, resp, err); err != nil {
		return gateway.Fail(err)
	}

	stored := body.Data
	if stored == nil {
		stored = w
	}
	created, err := records.FromWire(kind, stored, key)
	if err != nil {
		return gateway.Fail(err)
	}
	return gateway.OK(created)
}

func (g *Gateway) Update(ctx context.Context, kind records.Kind, id string, rec *records.Record) gateway.Result {
	info, ok := records.Info(kind)
	if !ok {
		return gateway.Fail(fmt.Errorf("unknown record kind %q", kind))
	}

	key := gateway.KeyFor(ctx, g.keys, rec.ProjectID)
	w, err := records.ToWire(rec, key)
	if err != nil {
		return gateway.Fail(err)
	}
	if w.Plaintext {
		g.log.Warn(ctx, "storing payload without encryption, no project key", "kind", kind, "project", rec.ProjectID)
	}

	req, ws, err := g.request(ctx)
	if err != nil {
		return gateway.Fail(err)
	}

	var body itemResponse
	resp, err := req.SetBody(w).SetResult(&body).Put(fmt.Sprintf("/%s/%s/%s/%s", ws, rec.ProjectID, info.Resource, id))
	if err := g.check(ctx, resp, err); err != nil {
		return gateway.Fail(err)
	}

	stored := body.Data
	if stored == nil {
		stored = w
		stored.DocID = id
	}
	updated, err := records.FromWire(kind, stored, key)
	if err != nil {
		return gateway.Fail(err)
	}
	return gateway.OK(updated)
}

func (g *Gateway) Delete(ctx context.Context, kind records.Kind, projectID, id string) gateway.Result {
	info, ok := records.Info(kind)
	if !ok {
		return gateway.Fail(fmt.Errorf("unknown record kind %q", kind))
	}

	req, ws, err := g.request(ctx)
	if err != nil {
		return gateway.Fail(err)
	}

	resp, err := req.Delete(fmt.Sprintf("/%s/%s/%s/%s", ws, projectID, info.Resource, id))
	if err := g.check(ctx, resp, err); err != nil {
		return gateway.Fail(err)
	}
	return gateway.OK()
}
