package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ProofChain/internal/auth"
	"ProofChain/internal/events"
	"ProofChain/internal/host"
	"ProofChain/internal/observability/metrics"
	"ProofChain/internal/proofs"
	"ProofChain/internal/receipt"
	"ProofChain/internal/storage"
	"ProofChain/pkg/logger"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type testServer struct {
	srv  *httptest.Server
	sink *events.MemorySink
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	sink := events.NewMemorySink(16)
	h := host.New(storage.NewMemoryStore(),
		host.WithClock(proofs.ClockFunc(func() uint64 { return 1700000000 })),
		host.WithSink(sink),
		host.WithLogger(logger.Discard()),
	)
	authSvc, err := auth.NewService(auth.Config{Mode: auth.ModeHeader})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	s := NewServer(":0", h, Options{
		Auth:          authSvc,
		Metrics:       metrics.NewWithRegistry(reg, reg),
		ExposeMetrics: true,
		Logger:        logger.Discard(),
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &testServer{srv: ts, sink: sink}
}

func (ts *testServer) do(t *testing.T, method, path string, caller *common.Address, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, ts.srv.URL+path, reader)
	require.NoError(t, err)
	if caller != nil {
		req.Header.Set(auth.DefaultHeader, caller.Hex())
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error envelope: %v", body)
	return e["code"].(string)
}

func TestCertifyAndReadBack(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/api/v1/proofs", &alice, CertifyRequest{ProofID: "TEST_CERT_001", ProofText: "Test Certificate"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, string(receipt.StatusSucceeded), body["status"])
	assert.Equal(t, "certify", body["operation"])

	resp, body = ts.do(t, http.MethodGet, "/api/v1/owners/"+alice.Hex()+"/proofs/TEST_CERT_001", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Test Certificate", body["proof_text"])
	assert.Equal(t, float64(1700000000), body["timestamp"])
	assert.Equal(t, "", body["metadata"])

	resp, body = ts.do(t, http.MethodGet, "/api/v1/proofs/TEST_CERT_001/owner", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, alice.Hex(), body["owner"])

	_, body = ts.do(t, http.MethodGet, "/api/v1/proofs/TEST_CERT_001/exists", nil, nil)
	assert.Equal(t, true, body["exists"])

	_, body = ts.do(t, http.MethodGet, "/api/v1/owners/"+alice.Hex()+"/count", nil, nil)
	assert.Equal(t, float64(1), body["count"])

	_, body = ts.do(t, http.MethodGet, "/api/v1/owners/"+alice.Hex()+"/proof-ids", nil, nil)
	assert.Equal(t, []any{"TEST_CERT_001"}, body["proof_ids"])

	_, body = ts.do(t, http.MethodGet, "/api/v1/stats", nil, nil)
	assert.Equal(t, float64(1), body["total_proofs"])

	require.Len(t, ts.sink.Events(), 1)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	_, _ = ts.do(t, http.MethodPost, "/api/v1/proofs", &alice, CertifyRequest{ProofID: "CERT", ProofText: "v1"})

	cases := []struct {
		name   string
		method string
		path   string
		caller *common.Address
		body   any
		status int
		code   string
	}{
		{"duplicate id", http.MethodPost, "/api/v1/proofs", &bob, CertifyRequest{ProofID: "CERT", ProofText: "x"}, http.StatusConflict, "PROOF_DUPLICATE_ID"},
		{"empty text", http.MethodPost, "/api/v1/proofs", &bob, CertifyRequest{ProofID: "OTHER"}, http.StatusBadRequest, "PROOF_INVALID_LENGTH"},
		{"empty id", http.MethodPost, "/api/v1/proofs", &bob, CertifyRequest{ProofText: "x"}, http.StatusBadRequest, "PROOF_INVALID_ID"},
		{"no caller", http.MethodPost, "/api/v1/proofs", nil, CertifyRequest{ProofID: "X", ProofText: "x"}, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"not owner", http.MethodPut, "/api/v1/proofs/CERT", &bob, UpdateRequest{ProofText: "x"}, http.StatusForbidden, "PROOF_UNAUTHORIZED"},
		{"unknown proof", http.MethodPut, "/api/v1/proofs/NOPE", &alice, UpdateRequest{ProofText: "x"}, http.StatusForbidden, "PROOF_UNAUTHORIZED"},
		{"bad body", http.MethodPut, "/api/v1/proofs/CERT", &alice, map[string]int{"bogus": 1}, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"missing owner", http.MethodGet, "/api/v1/proofs/NOPE/owner", nil, nil, http.StatusNotFound, "PROOF_NOT_FOUND"},
		{"missing record", http.MethodGet, "/api/v1/owners/" + bob.Hex() + "/proofs/CERT", nil, nil, http.StatusNotFound, "PROOF_NOT_FOUND"},
		{"bad owner", http.MethodGet, "/api/v1/owners/xyz/count", nil, nil, http.StatusBadRequest, "PROOF_INVALID_IDENTITY"},
		{"bad offset", http.MethodGet, "/api/v1/owners/" + alice.Hex() + "/proofs?offset=-1", nil, nil, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"missing receipt", http.MethodGet, "/api/v1/receipts/unknown", nil, nil, http.StatusNotFound, "RECEIPT_NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := ts.do(t, tc.method, tc.path, tc.caller, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.code, errorCode(t, body))
		})
	}

	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/v1/stats", nil)
	require.NoError(t, err)
	req.Header.Set(auth.DefaultHeader, "garbage")
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUpdateKeepsTimestampAndReturnsReceipt(t *testing.T) {
	ts := newTestServer(t)
	_, _ = ts.do(t, http.MethodPost, "/api/v1/proofs", &alice, CertifyRequest{ProofID: "CERT", ProofText: "v1"})

	meta := "signed"
	resp, body := ts.do(t, http.MethodPut, "/api/v1/proofs/CERT", &alice, UpdateRequest{ProofText: "v2", Metadata: &meta})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	txID := body["tx_id"].(string)

	_, body = ts.do(t, http.MethodGet, "/api/v1/owners/"+alice.Hex()+"/proofs", nil, nil)
	list := body["proofs"].([]any)
	require.Len(t, list, 1)
	rec := list[0].(map[string]any)
	assert.Equal(t, "v2", rec["proof_text"])
	assert.Equal(t, "signed", rec["metadata"])
	assert.Equal(t, float64(1700000000), rec["timestamp"])

	resp, body = ts.do(t, http.MethodGet, "/api/v1/receipts/"+txID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "update", body["operation"])

	_, body = ts.do(t, http.MethodGet, "/api/v1/receipts?operation=update&status=succeeded", nil, nil)
	assert.Len(t, body["receipts"], 1)
}

func TestProofIDsWithReservedCharacters(t *testing.T) {
	ts := newTestServer(t)
	id := "dir/cert 1"
	resp, _ := ts.do(t, http.MethodPost, "/api/v1/proofs", &alice, CertifyRequest{ProofID: id, ProofText: "x"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := ts.do(t, http.MethodGet, "/api/v1/proofs/"+url.PathEscape(id)+"/exists", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["exists"])
}

func TestHexEncodingCarriesRawBytes(t *testing.T) {
	ts := newTestServer(t)
	id := "0xff0001"
	meta := "0x00"

	resp, body := ts.do(t, http.MethodPost, "/api/v1/proofs?encoding=hex", &alice, CertifyRequest{ProofID: id, ProofText: "0xc328", Metadata: &meta})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %v", body)

	resp, body = ts.do(t, http.MethodPut, "/api/v1/proofs/"+id+"?encoding=hex", &alice, UpdateRequest{ProofText: "0xc328ff"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", body)

	resp, body = ts.do(t, http.MethodGet, "/api/v1/owners/"+alice.Hex()+"/proofs/"+id+"?encoding=hex", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, body["proof_id_hex"])
	assert.Equal(t, "0xc328ff", body["proof_text_hex"])
	assert.Equal(t, meta, body["metadata_hex"])

	_, body = ts.do(t, http.MethodGet, "/api/v1/proofs/"+id+"/exists?encoding=hex", nil, nil)
	assert.Equal(t, true, body["exists"])
	_, body = ts.do(t, http.MethodGet, "/api/v1/proofs/"+id+"/exists", nil, nil)
	assert.Equal(t, false, body["exists"], "without encoding the path is read as UTF-8")

	_, body = ts.do(t, http.MethodGet, "/api/v1/owners/"+alice.Hex()+"/proof-ids", nil, nil)
	assert.Equal(t, []any{id}, body["proof_ids_hex"])

	resp, body = ts.do(t, http.MethodPost, "/api/v1/proofs?encoding=hex", &alice, CertifyRequest{ProofID: "ff00", ProofText: "0x01"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, body))

	resp, body = ts.do(t, http.MethodPost, "/api/v1/proofs?encoding=base32", &alice, CertifyRequest{ProofID: "X", ProofText: "y"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, body))
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	_, _ = ts.do(t, http.MethodGet, "/api/v1/stats", nil, nil)

	resp, err := ts.srv.Client().Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `route="/api/v1/stats"`)
}

func TestWithContextRejectsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := withContext(ctx, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
