package handoff

import (
	"context"
	"errors"
	"fmt"

	"github.com/zecrypt/zecrypt-go/internal/common"
	"github.com/zecrypt/zecrypt-go/internal/gateway"
	"github.com/zecrypt/zecrypt-go/internal/keyvault"
	"github.com/zecrypt/zecrypt-go/internal/logging"
	"github.com/zecrypt/zecrypt-go/internal/records"
	"github.com/zecrypt/zecrypt-go/internal/session"
)

// Handler answers handoff messages against the session store, the key vault,
// and the data gateway. Every answer is a Reply; a failing message degrades
// to a Reply with Error set and never takes the channel down.
type Handler struct {
	sessions *session.Store
	vault    *keyvault.Vault
	gw       gateway.Gateway
	poller   *Poller
	notify   func(ctx context.Context, msg Message)
	log      logging.Logger
}

// NewHandler wires a handler. browser may be nil when the surface has no
// bridge slot to poll (the poller then reports bridge unavailable on every
// probe). notify, when non-nil, receives the AUTH_SUCCESS broadcast after a
// polled login lands.
func NewHandler(sessions *session.Store, vault *keyvault.Vault, gw gateway.Gateway, browser Browser, notify func(ctx context.Context, msg Message), log logging.Logger) *Handler {
	h := &Handler{
		sessions: sessions,
		vault:    vault,
		gw:       gw,
		notify:   notify,
		log:      log,
	}
	h.poller = NewPoller(browser, h.adoptPolled, log)
	return h
}

// Poller exposes the probe loop, mainly for surfaces that render its state.
func (h *Handler) Poller() *Poller {
	return h.poller
}

// Handle answers one message.
func (h *Handler) Handle(ctx context.Context, msg Message) Reply {
	switch msg.Type {
	case MsgLogin:
		return h.login(ctx, &BridgePayload{
			Token:         msg.Token,
			WorkspaceID:   msg.WorkspaceID,
			ProjectID:     msg.ProjectID,
			ProjectAESKey: msg.ProjectAESKey,
		})
	case MsgLogout:
		return h.logout(ctx)
	case MsgCheckAuth:
		return h.checkAuth(ctx)
	case MsgStartAuthCheck:
		h.poller.Start(ctx)
		return Reply{Success: true}
	case MsgStopAuthCheck:
		h.poller.Stop()
		return Reply{Success: true}
	case MsgFetchData:
		dataType := msg.DataType
		if dataType == "" {
			dataType = "cards"
		}
		return h.getData(ctx, dataType, true)
	case MsgGetData:
		return h.getData(ctx, msg.DataType, false)
	default:
		return failReply(fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// login adopts a session pushed in by the peer surface.
func (h *Handler) login(ctx context.Context, payload *BridgePayload) Reply {
	if payload.Token == "" {
		return failReply("login without token")
	}
	if err := h.adopt(ctx, payload); err != nil {
		return failReply(err.Error())
	}
	return Reply{Success: true, IsAuthenticated: true}
}

func (h *Handler) logout(ctx context.Context) Reply {
	if err := h.sessions.Clear(ctx); err != nil {
		return failReply(err.Error())
	}
	h.vault.Reset()
	h.poller.Stop()
	return Reply{Success: true}
}

// checkAuth answers the auth question in three steps: the durable session
// first, then one inline bridge probe, then a background polling run so a
// login that lands later is still picked up.
func (h *Handler) checkAuth(ctx context.Context) Reply {
	sess, err := h.sessions.Current(ctx)
	if err == nil && !session.TokenExpired(sess.Token) {
		return Reply{Success: true, IsAuthenticated: true}
	}
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return failReply(err.Error())
	}

	if payload, err := h.poller.checkOnce(ctx); err == nil {
		if err := h.adopt(ctx, payload); err != nil {
			return failReply(err.Error())
		}
		return Reply{Success: true, IsAuthenticated: true}
	}

	h.poller.Start(ctx)
	return Reply{Success: true, IsAuthenticated: false}
}

// getData lists records of the requested type for the active project. With
// multiple false only the first record is returned.
func (h *Handler) getData(ctx context.Context, dataType string, multiple bool) Reply {
	kind, ok := records.KindForResource(dataType)
	if !ok {
		return failReply(fmt.Sprintf("unknown data type %q", dataType))
	}

	sess, err := h.sessions.Current(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return failReply("not authenticated")
		}
		return failReply(err.Error())
	}

	res := h.gw.List(ctx, kind, sess.ProjectID)
	if !res.Success {
		return failReply(res.Err.Error())
	}
	if !multiple {
		return Reply{Success: true, IsAuthenticated: true, Data: res.First()}
	}
	return Reply{Success: true, IsAuthenticated: true, Data: res.Records, Multiple: true}
}

// adopt persists the handed-over session and stores its project key.
func (h *Handler) adopt(ctx context.Context, payload *BridgePayload) error {
	sess := &session.Session{
		Token:       payload.Token,
		WorkspaceID: payload.WorkspaceID,
		ProjectID:   payload.ProjectID,
		ProjectKey:  payload.ProjectAESKey,
	}
	if err := h.sessions.Save(ctx, sess); err != nil {
		return err
	}
	if payload.ProjectAESKey != "" && payload.ProjectID != "" {
		if err := h.vault.SetProjectKey(ctx, payload.ProjectID, payload.ProjectAESKey); err != nil {
			return err
		}
	}
	return nil
}

// adoptPolled is the poller's found callback: adopt, then broadcast.
func (h *Handler) adoptPolled(ctx context.Context, payload *BridgePayload) {
	if err := h.adopt(ctx, payload); err != nil {
		h.log.Error(ctx, "polled session could not be adopted", "error", err)
		return
	}
	h.log.Info(ctx, "session picked up from bridge", "workspace", payload.WorkspaceID, "project", payload.ProjectID)
	if h.notify != nil {
		h.notify(ctx, Message{Type: MsgAuthSuccess})
	}
}
