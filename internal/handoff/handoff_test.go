package handoff

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zecrypt/zecrypt-go/internal/common"
	"github.com/zecrypt/zecrypt-go/internal/fieldcipher"
	"github.com/zecrypt/zecrypt-go/internal/gateway"
	"github.com/zecrypt/zecrypt-go/internal/keyvault"
	"github.com/zecrypt/zecrypt-go/internal/logging"
	"github.com/zecrypt/zecrypt-go/internal/records"
	"github.com/zecrypt/zecrypt-go/internal/session"
)

type fakeSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{values: make(map[string]string)}
}

func (f *fakeSettings) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", common.ErrNotFound
	}
	return v, nil
}

func (f *fakeSettings) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func (f *fakeSettings) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return nil
}

// ctxSettings refuses work on a done context, the way the sqlite-backed
// settings store does.
type ctxSettings struct {
	*fakeSettings
}

func (c ctxSettings) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.fakeSettings.Get(ctx, key)
}

func (c ctxSettings) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.fakeSettings.Set(ctx, key, value)
}

func (c ctxSettings) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.fakeSettings.Delete(ctx, key)
}

// fakeBrowser serves the bridge slot after a configurable number of probes
// and counts every slot access.
type fakeBrowser struct {
	mu         sync.Mutex
	tabURL     string
	payload    string
	readyAfter int
	probes     int
}

func (f *fakeBrowser) ActiveTabURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tabURL, nil
}

func (f *fakeBrowser) TakeBridgePayload(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	if f.payload == "" || f.probes <= f.readyAfter {
		return "", common.ErrNotFound
	}
	p := f.payload
	f.payload = ""
	return p, nil
}

func (f *fakeBrowser) probeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

type fakeGateway struct {
	listed []records.Kind
	recs   []*records.Record
}

func (f *fakeGateway) List(ctx context.Context, kind records.Kind, projectID string) gateway.Result {
	f.listed = append(f.listed, kind)
	return gateway.OK(f.recs...)
}

func (f *fakeGateway) Create(ctx context.Context, kind records.Kind, rec *records.Record) gateway.Result {
	return gateway.OK(rec)
}

func (f *fakeGateway) Update(ctx context.Context, kind records.Kind, id string, rec *records.Record) gateway.Result {
	return gateway.OK(rec)
}

func (f *fakeGateway) Delete(ctx context.Context, kind records.Kind, projectID, id string) gateway.Result {
	return gateway.OK()
}

type harness struct {
	handler  *Handler
	settings settingsAPI
	sessions *session.Store
	vault    *keyvault.Vault
	gw       *fakeGateway
	browser  *fakeBrowser
	notified *int
}

// settingsAPI is the shape shared by the session and vault settings slots.
type settingsAPI interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

func newHarness(t *testing.T, browser *fakeBrowser) *harness {
	t.Helper()
	return newHarnessWith(t, browser, newFakeSettings())
}

func newHarnessWith(t *testing.T, browser *fakeBrowser, settings settingsAPI) *harness {
	t.Helper()
	log := logging.NewDiscardLogger()
	sessions := session.NewStore(settings)
	vault := keyvault.New(settings, fieldcipher.GenerateKey(), log)
	gw := &fakeGateway{}

	notified := 0
	h := NewHandler(sessions, vault, gw, browser, func(ctx context.Context, msg Message) {
		if msg.Type == MsgAuthSuccess {
			notified++
		}
	}, log)
	h.poller.interval = time.Millisecond

	return &harness{handler: h, settings: settings, sessions: sessions, vault: vault, gw: gw, browser: browser, notified: &notified}
}

func bridgeJSON(t *testing.T, p BridgePayload) string {
	t.Helper()
	b, err := json.Marshal(p)
	require.NoError(t, err)
	return string(b)
}

func TestEligibleURL(t *testing.T) {
	tests := []struct {
		url string
		ok  bool
	}{
		{"https://app.zecrypt.io/login", true},
		{"https://zecrypt.example.com/", true},
		{"http://localhost:3000/login", true},
		{"https://example.com/", false},
		{"chrome://settings", false},
		{"chrome-extension://abcdef/popup.html", false},
		{"moz-extension://abcdef/", false},
		{"about:blank", false},
		{"edge://flags", false},
		{"opera://start", false},
		{"ftp://zecrypt.io/file", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, eligibleURL(tt.url), tt.url)
	}
}

func TestHandler_LoginPersistsSessionAndKey(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeBrowser{})
	key := fieldcipher.GenerateKey()

	reply := h.handler.Handle(ctx, Message{
		Type:          MsgLogin,
		Token:         "tok-1",
		WorkspaceID:   "ws_1",
		ProjectID:     "proj_1",
		ProjectAESKey: key,
	})
	require.True(t, reply.Success, reply.Error)
	assert.True(t, reply.IsAuthenticated)

	sess, err := h.sessions.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ws_1", sess.WorkspaceID)

	got, err := h.vault.GetProjectKey(ctx, "proj_1")
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestHandler_LoginWithoutToken(t *testing.T) {
	h := newHarness(t, &fakeBrowser{})
	reply := h.handler.Handle(context.Background(), Message{Type: MsgLogin})
	assert.False(t, reply.Success)
	assert.NotEmpty(t, reply.Error)
}

func TestHandler_Logout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeBrowser{})

	h.handler.Handle(ctx, Message{Type: MsgLogin, Token: "tok-1", ProjectID: "proj_1"})
	reply := h.handler.Handle(ctx, Message{Type: MsgLogout})
	require.True(t, reply.Success)

	_, err := h.sessions.Current(ctx)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestHandler_CheckAuthWithDurableSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeBrowser{})

	h.handler.Handle(ctx, Message{Type: MsgLogin, Token: "opaque-token"})
	reply := h.handler.Handle(ctx, Message{Type: MsgCheckAuth})
	require.True(t, reply.Success)
	assert.True(t, reply.IsAuthenticated)
	// Answered from durable state, no bridge probe needed.
	assert.Zero(t, h.browser.probeCount())
}

func TestHandler_CheckAuthInlineProbe(t *testing.T) {
	ctx := context.Background()
	key := fieldcipher.GenerateKey()
	browser := &fakeBrowser{tabURL: "https://app.zecrypt.io/login"}
	h := newHarness(t, browser)
	browser.payload = bridgeJSON(t, BridgePayload{Token: "tok-1", WorkspaceID: "ws_1", ProjectID: "proj_1", ProjectAESKey: key})

	reply := h.handler.Handle(ctx, Message{Type: MsgCheckAuth})
	require.True(t, reply.Success)
	assert.True(t, reply.IsAuthenticated)

	sess, err := h.sessions.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "proj_1", sess.ProjectID)
}

func TestHandler_CheckAuthStartsBackgroundPolling(t *testing.T) {
	ctx := context.Background()
	browser := &fakeBrowser{tabURL: "https://app.zecrypt.io/login", readyAfter: 3}
	h := newHarness(t, browser)
	browser.payload = bridgeJSON(t, BridgePayload{Token: "tok-1", WorkspaceID: "ws_1", ProjectID: "proj_1"})

	reply := h.handler.Handle(ctx, Message{Type: MsgCheckAuth})
	require.True(t, reply.Success)
	assert.False(t, reply.IsAuthenticated)

	// The background run keeps probing and adopts the payload once it lands.
	require.Eventually(t, func() bool {
		return h.handler.poller.State() == PollFound
	}, time.Second, time.Millisecond)

	sess, err := h.sessions.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", sess.Token)
	assert.Equal(t, 1, *h.notified)

	// A found run probes no further.
	probes := h.browser.probeCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, probes, h.browser.probeCount())
}

func TestHandler_PolledLoginPersistsWithContextAwareStore(t *testing.T) {
	ctx := context.Background()
	key := fieldcipher.GenerateKey()
	browser := &fakeBrowser{tabURL: "https://app.zecrypt.io/login", readyAfter: 2}
	h := newHarnessWith(t, browser, ctxSettings{newFakeSettings()})
	browser.payload = bridgeJSON(t, BridgePayload{Token: "tok-1", WorkspaceID: "ws_1", ProjectID: "proj_1", ProjectAESKey: key})

	h.handler.poller.Start(ctx)
	require.Eventually(t, func() bool {
		return h.handler.poller.State() == PollFound
	}, time.Second, time.Millisecond)

	// Finishing the run must not cut short the adoption it triggered: with a
	// store that refuses work on a done context the session and key still land.
	require.Eventually(t, func() bool {
		_, err := h.sessions.Current(ctx)
		return err == nil
	}, time.Second, time.Millisecond)

	// A fresh store over the same settings proves the write reached durable
	// storage, not just the in-memory cell.
	sess, err := session.NewStore(h.settings).Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", sess.Token)

	got, err := h.vault.GetProjectKey(ctx, "proj_1")
	require.NoError(t, err)
	assert.Equal(t, key, got)
	assert.Equal(t, 1, *h.notified)
}

func TestPoller_AttemptBudget(t *testing.T) {
	browser := &fakeBrowser{tabURL: "https://app.zecrypt.io/login"}
	log := logging.NewDiscardLogger()
	p := NewPoller(browser, func(ctx context.Context, payload *BridgePayload) {}, log)
	p.interval = time.Millisecond
	p.maxAttempts = 5

	p.Start(context.Background())
	require.Eventually(t, func() bool {
		return p.State() == PollTimedOut
	}, time.Second, time.Millisecond)

	assert.Equal(t, 5, p.Attempts())
	assert.Equal(t, 5, browser.probeCount())

	// Exhausted run stays put.
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 5, browser.probeCount())
}

func TestPoller_StartIdempotentStopHalts(t *testing.T) {
	browser := &fakeBrowser{tabURL: "https://app.zecrypt.io/login"}
	p := NewPoller(browser, func(ctx context.Context, payload *BridgePayload) {}, logging.NewDiscardLogger())
	p.interval = time.Millisecond
	p.maxAttempts = 1000

	ctx := context.Background()
	p.Start(ctx)
	p.Start(ctx)
	assert.Equal(t, PollPolling, p.State())

	require.Eventually(t, func() bool { return p.Attempts() > 0 }, time.Second, time.Millisecond)

	p.Stop()
	assert.Equal(t, PollStopped, p.State())
	p.Stop()

	probes := browser.probeCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, probes, browser.probeCount())
}

func TestPoller_SkipsRestrictedPages(t *testing.T) {
	browser := &fakeBrowser{tabURL: "chrome://settings"}
	browser.payload = `{"token":"tok-1"}`
	p := NewPoller(browser, func(ctx context.Context, payload *BridgePayload) {
		t.Fatal("payload must not be taken from a restricted page")
	}, logging.NewDiscardLogger())

	_, err := p.checkOnce(context.Background())
	assert.ErrorIs(t, err, common.ErrBridgeUnavailable)
	assert.Zero(t, browser.probeCount())
}

func TestHandler_GetData(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeBrowser{})
	h.gw.recs = []*records.Record{
		{Envelope: records.Envelope{DocID: "card_1", Title: "Visa"}, Payload: &records.CardPayload{Number: "4111"}},
	}

	h.handler.Handle(ctx, Message{Type: MsgLogin, Token: "tok-1", ProjectID: "proj_1"})

	// GET_DATA answers with the first record only.
	reply := h.handler.Handle(ctx, Message{Type: MsgGetData, DataType: "cards"})
	require.True(t, reply.Success, reply.Error)
	assert.False(t, reply.Multiple)
	first, ok := reply.Data.(*records.Record)
	require.True(t, ok)
	assert.Equal(t, "card_1", first.DocID)
	assert.Equal(t, []records.Kind{records.KindCard}, h.gw.listed)

	// FETCH_DATA without a type defaults to cards and returns the whole list.
	reply = h.handler.Handle(ctx, Message{Type: MsgFetchData})
	require.True(t, reply.Success, reply.Error)
	assert.True(t, reply.Multiple)
	assert.Equal(t, []records.Kind{records.KindCard, records.KindCard}, h.gw.listed)

	reply = h.handler.Handle(ctx, Message{Type: MsgGetData, DataType: "mainframes"})
	assert.False(t, reply.Success)
}

func TestHandler_GetDataUnauthenticated(t *testing.T) {
	h := newHarness(t, &fakeBrowser{})
	reply := h.handler.Handle(context.Background(), Message{Type: MsgGetData, DataType: "emails"})
	assert.False(t, reply.Success)
	assert.Equal(t, "not authenticated", reply.Error)
}

func TestHandler_UnknownMessage(t *testing.T) {
	h := newHarness(t, &fakeBrowser{})
	reply := h.handler.Handle(context.Background(), Message{Type: "REBOOT"})
	assert.False(t, reply.Success)
	assert.NotEmpty(t, reply.Error)
}

func TestPusher(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	p := NewPusher(NewFrameMessenger(&buf), logging.NewDiscardLogger())
	assert.Equal(t, PushIdle, p.State())

	p.PushLogin(ctx, &BridgePayload{Token: "tok-1", WorkspaceID: "ws_1", ProjectID: "proj_1"})
	assert.Equal(t, PushAcknowledged, p.State())

	msg, err := readFrame(&buf)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, MsgLogin, msg.Type)
	assert.Equal(t, "tok-1", msg.Token)
}

type failingMessenger struct{}

func (failingMessenger) Send(ctx context.Context, msg Message) error {
	return common.ErrBridgeUnavailable
}

func TestPusher_FailureDoesNotPropagate(t *testing.T) {
	p := NewPusher(failingMessenger{}, logging.NewDiscardLogger())
	p.PushLogin(context.Background(), &BridgePayload{Token: "tok-1"})
	assert.Equal(t, PushFailed, p.State())
}

func TestHost_RoundTrip(t *testing.T) {
	h := newHarness(t, &fakeBrowser{})

	var in, out bytes.Buffer
	require.NoError(t, writeFrame(&in, Message{Type: MsgLogin, Token: "tok-1", ProjectID: "proj_1"}))
	require.NoError(t, writeFrame(&in, Message{Type: MsgCheckAuth}))

	host := NewHost(h.handler, &in, &out, logging.NewDiscardLogger())
	require.NoError(t, host.Run(context.Background()))

	var login, check Reply
	readReply(t, &out, &login)
	readReply(t, &out, &check)
	assert.True(t, login.Success)
	assert.True(t, check.IsAuthenticated)
}

func TestHost_MalformedBodyGetsErrorReply(t *testing.T) {
	h := newHarness(t, &fakeBrowser{})

	var in, out bytes.Buffer
	body := []byte("{not json")
	require.NoError(t, binary.Write(&in, binary.LittleEndian, uint32(len(body))))
	in.Write(body)

	host := NewHost(h.handler, &in, &out, logging.NewDiscardLogger())
	require.NoError(t, host.Run(context.Background()))

	var reply Reply
	readReply(t, &out, &reply)
	assert.False(t, reply.Success)
	assert.NotEmpty(t, reply.Error)
}

func TestHost_OversizedFrameEndsLoop(t *testing.T) {
	h := newHarness(t, &fakeBrowser{})

	var in, out bytes.Buffer
	require.NoError(t, binary.Write(&in, binary.LittleEndian, uint32(maxFrameSize+1)))

	host := NewHost(h.handler, &in, &out, logging.NewDiscardLogger())
	assert.Error(t, host.Run(context.Background()))
}

func readReply(t *testing.T, r *bytes.Buffer, v any) {
	t.Helper()
	var size uint32
	require.NoError(t, binary.Read(r, binary.LittleEndian, &size))
	body := make([]byte, size)
	_, err := r.Read(body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, v))
}
