package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldcasilang/sui-portfolio/internal/auth"
	"github.com/ldcasilang/sui-portfolio/internal/authpw"
	"github.com/ldcasilang/sui-portfolio/internal/cache"
	"github.com/ldcasilang/sui-portfolio/internal/export"
	"github.com/ldcasilang/sui-portfolio/internal/notify"
	"github.com/ldcasilang/sui-portfolio/internal/portfolio"
	"github.com/ldcasilang/sui-portfolio/internal/rbac"
	"github.com/ldcasilang/sui-portfolio/internal/store"
	"github.com/ldcasilang/sui-portfolio/internal/submit"
	"github.com/ldcasilang/sui-portfolio/internal/syncer"
)

const (
	testSecret   = "test-secret"
	testPassword = "correct horse battery"
)

type fakeEngine struct {
	mu          sync.Mutex
	status      syncer.Status
	draft       *portfolio.Record
	saveFn      func(context.Context) (submit.Outcome, error)
	reconcileFn func(context.Context) bool
	cleared     int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{status: syncer.Status{
		State:      syncer.StateResolved,
		Record:     portfolio.Default(),
		Source:     syncer.SourceBlockchain,
		Identifier: "0xabc",
	}}
}

func (f *fakeEngine) Status() syncer.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.status
	st.HasDraft = f.draft != nil
	return st
}

func (f *fakeEngine) Reconcile(ctx context.Context) bool {
	if f.reconcileFn != nil {
		return f.reconcileFn(ctx)
	}
	return true
}

func (f *fakeEngine) ApplyLocalDraft(patch portfolio.Patch) portfolio.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	base := f.status.Record
	if f.draft != nil {
		base = *f.draft
	}
	next := patch.Apply(base)
	f.draft = &next
	return next
}

func (f *fakeEngine) Draft() (portfolio.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draft == nil {
		return f.status.Record, false
	}
	return *f.draft, true
}

func (f *fakeEngine) DiscardDraft() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft = nil
}

func (f *fakeEngine) Save(ctx context.Context) (submit.Outcome, error) {
	if f.saveFn != nil {
		return f.saveFn(ctx)
	}
	return submit.Outcome{}, errors.New("save not stubbed")
}

func (f *fakeEngine) ClearIdentifier(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	f.status.Identifier = ""
	f.status.State = syncer.StateUnresolved
	f.status.Source = syncer.SourceLocal
	return nil
}

type fakeLedger struct {
	mu       sync.Mutex
	inserted []store.Transaction
	insertFn func(store.Transaction) error
	pingErr  error
}

func (f *fakeLedger) InsertTransaction(_ context.Context, tx store.Transaction) (store.Transaction, error) {
	if f.insertFn != nil {
		if err := f.insertFn(tx); err != nil {
			return store.Transaction{}, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tx.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f.inserted = append(f.inserted, tx)
	return tx, nil
}

func (f *fakeLedger) ListTransactions(_ context.Context, limit int) ([]store.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Transaction{}
	for i := len(f.inserted) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.inserted[i])
	}
	return out, nil
}

func (f *fakeLedger) Ping(context.Context) error { return f.pingErr }

type fakeExporter struct {
	got export.Request
	err error
}

func (f *fakeExporter) Export(_ context.Context, req export.Request) (*export.Result, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &export.Result{Data: []byte("%PDF-fake"), Filename: "portfolio.pdf", MimeType: "application/pdf"}, nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type harness struct {
	engine   *fakeEngine
	ledger   *fakeLedger
	exporter *fakeExporter
	hub      *notify.Hub
	service  *Service
	handler  http.Handler
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	gate, err := authpw.NewGate(testPassword, "")
	require.NoError(t, err)

	h := &harness{
		engine:   newFakeEngine(),
		ledger:   &fakeLedger{},
		exporter: &fakeExporter{},
		hub:      notify.NewHub(0),
	}
	deps := Deps{
		Engine:   h.engine,
		Cache:    cache.NewMemoryStore(),
		Ledger:   h.ledger,
		Hub:      h.hub,
		Exporter: h.exporter,
		Gate:     gate,
	}
	if mutate != nil {
		mutate(&deps)
	}
	h.service = New(Options{TokenSecret: testSecret, AccessTTL: time.Hour}, deps, nil)
	h.handler = NewHTTPServer(h.service, "*", nil).Handler()
	return h
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

func (h *harness) login(t *testing.T) string {
	t.Helper()
	rr := h.do(t, http.MethodPost, "/api/admin/login", "", map[string]string{"password": testPassword})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	require.Equal(t, "admin", resp.Role)
	return resp.Token
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

type errorBody struct {
	Code    string         `json:"code"`
	Error   string         `json:"error"`
	Details map[string]any `json:"details"`
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	rr := h.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode[map[string]any](t, rr)["ok"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflightReturnsNoContent(t *testing.T) {
	h := newHarness(t, nil)
	rr := h.do(t, http.MethodOptions, "/api/admin/save", "", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestReadyEndpointWithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	redisStore, err := cache.NewRedisStore("redis://"+mr.Addr(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisStore.Close() })

	h := newHarness(t, func(d *Deps) { d.Cache = redisStore })
	rr := h.do(t, http.MethodGet, "/api/ready", "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode[map[string]any](t, rr)
	assert.Equal(t, "ready", body["status"])

	mr.Close()
	rr = h.do(t, http.MethodGet, "/api/ready", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	checks := decode[map[string]any](t, rr)["checks"].(map[string]any)
	assert.Equal(t, "error", checks["cache"].(map[string]any)["status"])
	assert.Equal(t, "ok", checks["ledger"].(map[string]any)["status"])
}

func TestReadyEndpointReportsDisabledLedger(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Ledger = nil })
	rr := h.do(t, http.MethodGet, "/api/ready", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	checks := decode[map[string]any](t, rr)["checks"].(map[string]any)
	assert.Equal(t, "disabled", checks["ledger"].(map[string]any)["status"])
}

func TestReadyEndpointFailingCache(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Cache = failingPinger{} })
	rr := h.do(t, http.MethodGet, "/api/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestPublicPortfolio(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.status.Transaction = &syncer.Transaction{
		Digest:      "9xYzDigestValueThatIsLong1234",
		Short:       "9xYzDigestVa...Long1234",
		ExplorerURL: "https://suiscan.xyz/testnet/tx/9xYzDigestValueThatIsLong1234",
	}

	rr := h.do(t, http.MethodGet, "/api/portfolio", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	status := decode[syncer.Status](t, rr)
	assert.Equal(t, syncer.StateResolved, status.State)
	assert.Equal(t, "0xabc", status.Identifier)
	assert.Equal(t, syncer.SourceBlockchain, status.Source)
	assert.Equal(t, portfolio.Default(), status.Record)
	require.NotNil(t, status.Transaction)
	assert.Equal(t, "9xYzDigestVa...Long1234", status.Transaction.Short)
}

func TestLogin(t *testing.T) {
	h := newHarness(t, nil)

	rr := h.do(t, http.MethodPost, "/api/admin/login", "", map[string]string{"password": "wrong password"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decode[errorBody](t, rr).Code)

	rr = h.do(t, http.MethodPost, "/api/admin/login", "", map[string]any{"password": testPassword, "extra": 1})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "unknown fields are rejected")

	token := h.login(t)
	rr = h.do(t, http.MethodGet, "/api/admin/draft", token, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestLoginUnconfigured(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Gate = nil })
	rr := h.do(t, http.MethodPost, "/api/admin/login", "", map[string]string{"password": testPassword})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "AUTH_UNAVAILABLE", decode[errorBody](t, rr).Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	h := newHarness(t, nil)
	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/admin/draft"},
		{http.MethodPatch, "/api/admin/draft"},
		{http.MethodDelete, "/api/admin/draft"},
		{http.MethodPost, "/api/admin/save"},
		{http.MethodPost, "/api/admin/reconcile"},
		{http.MethodDelete, "/api/admin/identifier"},
		{http.MethodGet, "/api/admin/transactions"},
		{http.MethodGet, "/api/admin/notifications"},
		{http.MethodDelete, "/api/admin/notifications/abc"},
		{http.MethodPost, "/api/admin/logout"},
	}
	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			rr := h.do(t, route.method, route.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			rr = h.do(t, route.method, route.path, "garbage.token", nil)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}
}

func TestViewerTokenCannotSave(t *testing.T) {
	h := newHarness(t, nil)
	claims := auth.NewSession("guest", string(rbac.RoleViewer), time.Hour, time.Now())
	token, err := auth.IssueToken([]byte(testSecret), claims)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/admin/draft", token, nil).Code)
	rr := h.do(t, http.MethodPost, "/api/admin/save", token, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "FORBIDDEN", decode[errorBody](t, rr).Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	h := newHarness(t, nil)
	token := h.login(t)

	rr := h.do(t, http.MethodPost, "/api/admin/logout", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(t, http.MethodGet, "/api/admin/draft", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestDraftLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	token := h.login(t)

	rr := h.do(t, http.MethodGet, "/api/admin/draft", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[DraftView](t, rr).HasDraft)

	rr = h.do(t, http.MethodPatch, "/api/admin/draft", token, map[string]any{"name": "Alice"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	view := decode[DraftView](t, rr)
	assert.True(t, view.HasDraft)
	assert.Equal(t, "Alice", view.Record.Name)
	assert.Equal(t, portfolio.Default().School, view.Record.School)

	rr = h.do(t, http.MethodPatch, "/api/admin/draft", token, map[string]any{})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "EMPTY_PATCH", decode[errorBody](t, rr).Code)

	// the public view keeps showing the confirmed record
	public := decode[syncer.Status](t, h.do(t, http.MethodGet, "/api/portfolio", "", nil))
	assert.Equal(t, portfolio.Default().Name, public.Record.Name)

	rr = h.do(t, http.MethodDelete, "/api/admin/draft", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	view = decode[DraftView](t, rr)
	assert.False(t, view.HasDraft)
	assert.Equal(t, portfolio.Default().Name, view.Record.Name)
}

func TestSaveRecordsLedgerEntry(t *testing.T) {
	h := newHarness(t, nil)
	token := h.login(t)
	digest := "9xYzDigestValueThatIsLong1234"
	h.engine.saveFn = func(context.Context) (submit.Outcome, error) {
		h.engine.mu.Lock()
		h.engine.status.Record.Name = "Alice"
		h.engine.status.Transaction = &syncer.Transaction{Digest: digest, Short: submit.ShortDigest(digest)}
		h.engine.mu.Unlock()
		return submit.Outcome{TxRef: digest, Action: submit.ActionUpdate}, nil
	}

	rr := h.do(t, http.MethodPost, "/api/admin/save", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	result := decode[SaveResult](t, rr)
	assert.Equal(t, digest, result.Transaction.Digest)
	assert.Equal(t, submit.ActionUpdate, result.Action)

	require.Len(t, h.ledger.inserted, 1)
	entry := h.ledger.inserted[0]
	assert.Equal(t, digest, entry.Digest)
	assert.Equal(t, "update", entry.Action)
	assert.Equal(t, "0xabc", entry.RecordID)
	assert.Equal(t, "Alice", entry.Snapshot.Name)

	rr = h.do(t, http.MethodGet, "/api/admin/transactions?limit=5", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	listed := decode[struct {
		Items []store.Transaction `json:"items"`
	}](t, rr)
	require.Len(t, listed.Items, 1)
	assert.Equal(t, digest, listed.Items[0].Digest)
}

func TestSaveSucceedsWhenLedgerFails(t *testing.T) {
	h := newHarness(t, nil)
	token := h.login(t)
	h.ledger.insertFn = func(store.Transaction) error { return errors.New("db down") }
	h.engine.saveFn = func(context.Context) (submit.Outcome, error) {
		return submit.Outcome{TxRef: "digest-1", Action: submit.ActionCreate, CreatedID: "0xnew"}, nil
	}

	rr := h.do(t, http.MethodPost, "/api/admin/save", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	result := decode[SaveResult](t, rr)
	assert.Equal(t, "0xnew", result.CreatedID)
	assert.Equal(t, "digest-1", result.Transaction.Digest)
}

func TestSaveErrorMapping(t *testing.T) {
	validation := &submit.Error{
		Kind:    submit.KindValidation,
		Message: "name is required",
		Err:     &portfolio.ValidationError{Problems: []string{"name is required"}},
	}
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"validation", validation, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required"},
		{"busy", submit.ErrBusy, http.StatusConflict, "SUBMISSION_BUSY", "A save is already in progress"},
		{"rejected", &submit.Error{Kind: submit.KindUserRejected, Message: "User rejected the request"}, http.StatusBadRequest, "USER_REJECTED", "User rejected the request"},
		{"funds", &submit.Error{Kind: submit.KindInsufficientFunds, Message: "Insufficient gas"}, http.StatusPaymentRequired, "INSUFFICIENT_FUNDS", "Insufficient gas"},
		{"mismatch", &submit.Error{Kind: submit.KindRemoteFunctionMismatch, Message: "ArityMismatch in command"}, http.StatusBadGateway, "REMOTE_FUNCTION_MISMATCH", "ArityMismatch in command"},
		{"unknown", &submit.Error{Kind: submit.KindUnknown, Message: "An error occurred"}, http.StatusBadGateway, "SUBMISSION_FAILED", "An error occurred"},
		{"closed", syncer.ErrClosed, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Service is shutting down"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "SERVER_ERROR", "Server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			token := h.login(t)
			h.engine.saveFn = func(context.Context) (submit.Outcome, error) { return submit.Outcome{}, tt.err }

			rr := h.do(t, http.MethodPost, "/api/admin/save", token, nil)
			require.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			body := decode[errorBody](t, rr)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantMsg, body.Error)
			if tt.name == "validation" {
				assert.Equal(t, []any{"name is required"}, body.Details["problems"])
			}
			assert.Empty(t, h.ledger.inserted)
		})
	}
}

func TestReconcileReportsCoalescing(t *testing.T) {
	h := newHarness(t, nil)
	token := h.login(t)
	h.engine.reconcileFn = func(context.Context) bool { return false }

	rr := h.do(t, http.MethodPost, "/api/admin/reconcile", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.Equal(t, false, body["ran"])
	assert.NotNil(t, body["status"])
}

func TestClearIdentifier(t *testing.T) {
	h := newHarness(t, nil)
	token := h.login(t)

	rr := h.do(t, http.MethodDelete, "/api/admin/identifier", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	status := decode[syncer.Status](t, rr)
	assert.Equal(t, 1, h.engine.cleared)
	assert.Empty(t, status.Identifier)
	assert.Equal(t, syncer.SourceLocal, status.Source)
}

func TestTransactionsWithoutLedger(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Ledger = nil })
	token := h.login(t)

	rr := h.do(t, http.MethodGet, "/api/admin/transactions", token, nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "LEDGER_DISABLED", decode[errorBody](t, rr).Code)

	rr = h.do(t, http.MethodGet, "/api/admin/transactions?limit=-1", token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNotifications(t *testing.T) {
	h := newHarness(t, nil)
	token := h.login(t)
	h.hub.Notify(notify.KindWaiting, "Waiting for signature", false)
	h.hub.Notify(notify.KindSuccess, "Portfolio saved", true)

	rr := h.do(t, http.MethodGet, "/api/admin/notifications", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	listed := decode[struct {
		Items []notify.Notification `json:"items"`
	}](t, rr)
	require.Len(t, listed.Items, 1, "success replaces the waiting notice")
	assert.Equal(t, notify.KindSuccess, listed.Items[0].Kind)

	rr = h.do(t, http.MethodDelete, "/api/admin/notifications/"+listed.Items[0].ID, token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, h.hub.List())

	rr = h.do(t, http.MethodDelete, "/api/admin/notifications/"+listed.Items[0].ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestExportPDF(t *testing.T) {
	h := newHarness(t, nil)
	rr := h.do(t, http.MethodGet, "/api/portfolio.pdf", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "portfolio.pdf")
	assert.Equal(t, "%PDF-fake", rr.Body.String())
	assert.Equal(t, export.FormatPDF, h.exporter.got.Format)
	assert.Equal(t, "0xabc", h.exporter.got.Identifier)
	assert.Equal(t, portfolio.Default(), h.exporter.got.Record)
}

func TestExportUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	h.exporter.err = export.ErrPDFDependencyMissing
	rr := h.do(t, http.MethodGet, "/api/portfolio.pdf", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "EXPORT_UNAVAILABLE", decode[errorBody](t, rr).Code)
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t, nil)
	rr := h.do(t, http.MethodGet, "/api/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", decode[errorBody](t, rr).Code)
}
