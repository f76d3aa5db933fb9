// Package local implements the gateway over the embedded store. All access
// goes through the store's narrow command surface; this package only maps
// typed records onto the generic row shape and back.
package local

import (
	"context"
	"fmt"

	"github.com/zecrypt/zecrypt-go/internal/gateway"
	"github.com/zecrypt/zecrypt-go/internal/localstore"
	"github.com/zecrypt/zecrypt-go/internal/logging"
	"github.com/zecrypt/zecrypt-go/internal/records"
)

// Bridge is the embedded store's command surface.
type Bridge interface {
	List(ctx context.Context, table, projectID string) ([]localstore.Row, error)
	Create(ctx context.Context, table, idPrefix string, payload localstore.Row) (localstore.Row, error)
	Update(ctx context.Context, table, id string, updates localstore.Row) (localstore.Row, error)
	Delete(ctx context.Context, table, id string) error
}

// Gateway serves CRUD calls from the embedded store.
type Gateway struct {
	bridge Bridge
	keys   gateway.KeySource
	log    logging.Logger
}

// New builds a local gateway over bridge.
func New(bridge Bridge, keys gateway.KeySource, log logging.Logger) *Gateway {
	return &Gateway{bridge: bridge, keys: keys, log: log}
}

func (g *Gateway) List(ctx context.Context, kind records.Kind, projectID string) gateway.Result {
	info, ok := records.Info(kind)
	if !ok {
		return gateway.Fail(fmt.Errorf("unknown record kind %q", kind))
	}

	rows, err := g.bridge.List(ctx, info.Table, projectID)
	if err != nil {
		return gateway.Fail(err)
	}

	key := gateway.KeyFor(ctx, g.keys, projectID)
	recs := make([]*records.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := records.FromWire(kind, rowToWire(row), key)
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

	row, err := g.bridge.Create(ctx, info.Table, info.IDPrefix, wireToRow(w))
	if err != nil {
		return gateway.Fail(err)
	}

	created, err := records.FromWire(kind, rowToWire(row), key)
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

	row, err := g.bridge.Update(ctx, info.Table, id, wireToRow(w))
	if err != nil {
		return gateway.Fail(err)
	}

	updated, err := records.FromWire(kind, rowToWire(row), key)
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

	if err := g.bridge.Delete(ctx, info.Table, id); err != nil {
		return gateway.Fail(err)
	}
	return gateway.OK()
}

// wireToRow flattens a wire record into the generic row shape. Empty
// envelope fields are omitted so the store's COALESCE merge keeps existing
// column values on partial updates.
func wireToRow(w *records.WireRecord) localstore.Row {
	row := localstore.Row{"data": w.Data}
	put := func(col, val string) {
		if val != "" {
			row[col] = val
		}
	}
	put("project_id", w.ProjectID)
	put("title", w.Title)
	put("notes", w.Notes)
	put("created_by", w.CreatedBy)
	put("brand", w.Brand)
	put("url", w.URL)
	put("ssid", w.SSID)
	put("security_type", w.SecurityType)
	put("env", w.Env)
	put("wallet_type", w.WalletType)
	put("wallet_address", w.WalletAddress)
	put("expires_at", w.ExpiresAt)
	if len(w.Tags) > 0 {
		row["tags"] = w.Tags
	}
	return row
}

// rowToWire lifts a generic row back into a wire record.
func rowToWire(row localstore.Row) *records.WireRecord {
	str := func(col string) string {
		s, _ := row[col].(string)
		return s
	}

	w := &records.WireRecord{
		Envelope: records.Envelope{
			DocID:         str("id"),
			ProjectID:     str("project_id"),
			Title:         str("title"),
			Notes:         str("notes"),
			CreatedAt:     str("created_at"),
			UpdatedAt:     str("updated_at"),
			CreatedBy:     str("created_by"),
			Brand:         str("brand"),
			URL:           str("url"),
			SSID:          str("ssid"),
			SecurityType:  str("security_type"),
			Env:           str("env"),
			WalletType:    str("wallet_type"),
			WalletAddress: str("wallet_address"),
			ExpiresAt:     str("expires_at"),
		},
		Data: str("data"),
	}
	if tags, ok := row["tags"].([]string); ok {
		w.Tags = tags
	}
	return w
}
