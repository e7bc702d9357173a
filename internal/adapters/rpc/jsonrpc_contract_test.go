package rpc

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docregistry/go-backend/internal/app"
	"docregistry/go-backend/internal/identity"
	"docregistry/go-backend/internal/platform/metrics"
	"docregistry/go-backend/internal/platform/ratelimiter"
	"docregistry/go-backend/internal/storage"
	"docregistry/go-backend/internal/substrate"
)

const (
	wallet0Hex = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	helloHash  = "0x2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	otherHash  = "0x1111111111111111111111111111111111111111111111111111111111111111"
)

func newTestService(t *testing.T) *app.Service {
	t.Helper()
	session, err := identity.NewSessionFromMnemonic("", identity.PathTemplate, 3)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	m := metrics.New()
	svc, err := app.NewService(app.Deps{
		Session:   session,
		Substrate: substrate.NewLocal(storage.NewRecordStore(), substrate.Options{Metrics: m}),
		Metrics:   m,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	s, err := NewServer(newTestService(t), opts)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s
}

func rpcCall(t *testing.T, s *Server, body string, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(rpcTokenHeader, token)
	}
	rec := httptest.NewRecorder()
	s.HandleRPC(rec, req)
	return rec
}

func rpcCallWithHeaders(t *testing.T, s *Server, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.HandleRPC(rec, req)
	return rec
}

func decodeRPCResponse(t *testing.T, rec *httptest.ResponseRecorder) rpcResponse {
	t.Helper()
	var resp rpcResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode rpc response: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

// call posts method with params and returns the decoded result object,
// failing on any RPC error.
func call(t *testing.T, s *Server, method string, params string) map[string]any {
	t.Helper()
	resp := decodeRPCResponse(t, rpcCall(t, s, `{"jsonrpc":"2.0","id":1,"method":"`+method+`","params":`+params+`}`, ""))
	if resp.Error != nil {
		t.Fatalf("%s: unexpected rpc error %d: %s", method, resp.Error.Code, resp.Error.Message)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("%s: expected object result, got %T", method, resp.Result)
	}
	return result
}

func callError(t *testing.T, s *Server, method string, params string) *rpcError {
	t.Helper()
	resp := decodeRPCResponse(t, rpcCall(t, s, `{"jsonrpc":"2.0","id":1,"method":"`+method+`","params":`+params+`}`, ""))
	if resp.Error == nil {
		t.Fatalf("%s: expected rpc error, got result %v", method, resp.Result)
	}
	return resp.Error
}

func TestRPCHealthzContract(t *testing.T) {
	s, err := NewServer(nil, Options{Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.HandleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health payload: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status=ok, got %q", body["status"])
	}
}

func TestRPCRejectsUnauthorizedRequest(t *testing.T) {
	s := newTestServer(t, Options{Token: "secret-token", RequireToken: true})

	rec := rpcCall(t, s, `{"jsonrpc":"2.0","id":1,"method":"health_check","params":{}}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}

	rec = rpcCall(t, s, `{"jsonrpc":"2.0","id":1,"method":"health_check","params":{}}`, "secret-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d with token, got %d", http.StatusOK, rec.Code)
	}
}

func TestRPCServiceMissing(t *testing.T) {
	s, err := NewServer(nil, Options{Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	resp := decodeRPCResponse(t, rpcCall(t, s, `{"jsonrpc":"2.0","id":1,"method":"health_check"}`, ""))
	if resp.Error != nil {
		t.Fatalf("health_check must work without a service, got %v", resp.Error)
	}
	resp = decodeRPCResponse(t, rpcCall(t, s, `{"jsonrpc":"2.0","id":2,"method":"registry.count"}`, ""))
	if resp.Error == nil || resp.Error.Code != codeServiceNotInitialized {
		t.Fatalf("expected code %d, got %+v", codeServiceNotInitialized, resp.Error)
	}
	resp = decodeRPCResponse(t, rpcCall(t, s, `{"jsonrpc":"2.0","id":3,"method":"no.such"}`, ""))
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected code %d, got %+v", codeMethodNotFound, resp.Error)
	}
}

func TestRPCRequestEnvelopeErrors(t *testing.T) {
	s := newTestServer(t, Options{})

	resp := decodeRPCResponse(t, rpcCall(t, s, `{"jsonrpc":`, ""))
	if resp.Error == nil || resp.Error.Code != codeParseError {
		t.Fatalf("expected parse error, got %+v", resp.Error)
	}
	resp = decodeRPCResponse(t, rpcCall(t, s, `{"jsonrpc":"1.0","id":1,"method":"health_check"}`, ""))
	if resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("expected invalid request, got %+v", resp.Error)
	}
	resp = decodeRPCResponse(t, rpcCall(t, s, `{"jsonrpc":"2.0","id":1,"method":"health_check"} {}`, ""))
	if resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("expected invalid request for trailing data, got %+v", resp.Error)
	}

	req := httptest.NewRequest(http.MethodGet, "/rpc", nil)
	rec := httptest.NewRecorder()
	s.HandleRPC(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rec.Code)
	}
}

func TestRPCVersionAndCapabilities(t *testing.T) {
	s := newTestServer(t, Options{})

	version := call(t, s, "rpc.version", `[]`)
	if version["current_version"] != float64(rpcAPICurrentVersion) {
		t.Fatalf("unexpected version info: %v", version)
	}

	caps := call(t, s, "rpc.capabilities", `{}`)
	methods, ok := caps["methods"].([]any)
	if !ok || len(methods) != len(rpcMethods) {
		t.Fatalf("unexpected capabilities: %v", caps)
	}
	for i := 1; i < len(methods); i++ {
		if methods[i-1].(string) > methods[i].(string) {
			t.Fatalf("capabilities are not sorted: %v", methods)
		}
	}
}

func TestRPCAPIVersionNegotiation(t *testing.T) {
	s := newTestServer(t, Options{})

	resp := decodeRPCResponse(t, rpcCall(t, s, `{"jsonrpc":"2.0","id":1,"method":"health_check","api_version":99}`, ""))
	if resp.Error == nil || resp.Error.Code != codeVersionUnsupported {
		t.Fatalf("expected code %d, got %+v", codeVersionUnsupported, resp.Error)
	}
	resp = decodeRPCResponse(t, rpcCall(t, s, `{"jsonrpc":"2.0","id":1,"method":"health_check","api_version":0}`, ""))
	if resp.Error == nil || resp.Error.Code != codeVersionDeprecated {
		t.Fatalf("expected code %d, got %+v", codeVersionDeprecated, resp.Error)
	}
	resp = decodeRPCResponse(t, rpcCall(t, s, `{"jsonrpc":"2.0","id":1,"method":"health_check","api_version":1}`, ""))
	if resp.Error != nil {
		t.Fatalf("current version rejected: %+v", resp.Error)
	}
}

func TestRPCDocumentHashing(t *testing.T) {
	s := newTestServer(t, Options{})

	got := call(t, s, "document.hash", `["aGVsbG8="]`)
	if got["hash"] != helloHash {
		t.Fatalf("expected %s, got %v", helloHash, got["hash"])
	}
	got = call(t, s, "document.normalize_hash", `["`+strings.ToUpper(strings.TrimPrefix(helloHash, "0x"))+`"]`)
	if got["hash"] != helloHash {
		t.Fatalf("expected normalized %s, got %v", helloHash, got["hash"])
	}
	if rpcErr := callError(t, s, "document.normalize_hash", `["0xabc"]`); rpcErr.Code != codeInvalidParams {
		t.Fatalf("expected code %d, got %d", codeInvalidParams, rpcErr.Code)
	}
	if rpcErr := callError(t, s, "document.hash", `["not base64!"]`); rpcErr.Code != codeInvalidParams {
		t.Fatalf("expected code %d, got %d", codeInvalidParams, rpcErr.Code)
	}
}

func TestRPCSignStoreVerifyFlow(t *testing.T) {
	s := newTestServer(t, Options{})

	if rpcErr := callError(t, s, "document.sign", `["`+helloHash+`"]`); rpcErr.Code != codeSigningUnavailable {
		t.Fatalf("expected code %d before activation, got %d", codeSigningUnavailable, rpcErr.Code)
	}

	activated := call(t, s, "wallet.activate", `[0]`)
	wallet := activated["wallet"].(map[string]any)
	if !strings.EqualFold(wallet["address"].(string), wallet0Hex) {
		t.Fatalf("unexpected wallet: %v", wallet)
	}
	active := call(t, s, "wallet.active", `[]`)
	if active["active"] != true {
		t.Fatalf("expected active wallet, got %v", active)
	}

	pending := call(t, s, "document.sign_and_store", `["`+helloHash+`"]`)
	pendingID, _ := pending["pending_id"].(string)
	if pendingID == "" {
		t.Fatalf("missing pending id: %v", pending)
	}
	receipt := call(t, s, "registry.await", `["`+pendingID+`", 5000]`)
	if receipt["first_index"] != float64(0) {
		t.Fatalf("unexpected receipt: %v", receipt)
	}

	stored := call(t, s, "registry.is_stored", `["`+helloHash+`"]`)
	if stored["stored"] != true {
		t.Fatalf("expected stored document, got %v", stored)
	}
	record := call(t, s, "registry.get", `["`+helloHash+`"]`)
	if !strings.EqualFold(record["signer"].(string), wallet0Hex) {
		t.Fatalf("unexpected record signer: %v", record)
	}
	count := call(t, s, "registry.count", `[]`)
	if count["count"] != float64(1) {
		t.Fatalf("expected count 1, got %v", count)
	}
	at := call(t, s, "registry.hash_at", `[0]`)
	if at["hash"] != helloHash {
		t.Fatalf("expected %s at index 0, got %v", helloHash, at)
	}

	verified := call(t, s, "registry.verify", `["`+helloHash+`","`+wallet0Hex+`"]`)
	if verified["status"] != "valid" {
		t.Fatalf("expected valid, got %v", verified)
	}
	wrong := call(t, s, "registry.verify", `["`+helloHash+`","0x70997970C51812dc3A010C7d01b50e0d17dc79C8"]`)
	if wrong["status"] != "invalid" {
		t.Fatalf("expected invalid for other signer, got %v", wrong)
	}
	missing := call(t, s, "registry.verify", `["`+otherHash+`","`+wallet0Hex+`"]`)
	if missing["status"] != "not_found" {
		t.Fatalf("expected not_found, got %v", missing)
	}

	listing := call(t, s, "registry.list", `[true]`)
	entries := listing["entries"].([]any)
	if len(entries) != 1 || entries[0].(map[string]any)["verified"] != true {
		t.Fatalf("unexpected listing: %v", listing)
	}

	sig := record["signature"].(string)
	check := call(t, s, "signature.verify", `["`+helloHash+`","`+wallet0Hex+`","`+sig+`"]`)
	if check["valid"] != true {
		t.Fatalf("expected valid signature, got %v", check)
	}

	deactivated := call(t, s, "wallet.deactivate", `null`)
	if deactivated["deactivated"] != true {
		t.Fatalf("unexpected deactivate result: %v", deactivated)
	}
}

func TestRPCRegistryErrorCodes(t *testing.T) {
	s := newTestServer(t, Options{})

	pending := call(t, s, "registry.store", `["`+otherHash+`","`+wallet0Hex+`",""]`)
	call(t, s, "registry.await", `["`+pending["pending_id"].(string)+`"]`)

	cases := []struct {
		name   string
		method string
		params string
		code   int
	}{
		{"duplicate", "registry.store", `["` + otherHash + `","` + wallet0Hex + `",""]`, codeDocumentExists},
		{"not found", "registry.get", `["` + helloHash + `"]`, codeDocumentNotFound},
		{"length mismatch", "registry.store_batch", `{"hashes":["` + helloHash + `"],"signatures":[],"signer":"` + wallet0Hex + `"}`, codeArrayLengthMismatch},
		{"out of range", "registry.hash_at", `[5]`, codeIndexOutOfRange},
		{"malformed signature", "signature.verify", `["` + helloHash + `","` + wallet0Hex + `","0x0102"]`, codeMalformedSignature},
		{"unknown pending", "registry.await", `["missing"]`, codeUnknownPending},
		{"bad address", "registry.verify", `["` + helloHash + `","0x1234"]`, codeInvalidParams},
		{"bad wallet index", "wallet.activate", `[7]`, codeInvalidParams},
		{"missing params", "registry.get", `[]`, codeInvalidParams},
		{"extra params", "registry.count", `[1]`, codeInvalidParams},
		{"timestamp beyond int64", "registry.store", `["` + helloHash + `","` + wallet0Hex + `","",9223372036854775808]`, codeInvalidParams},
		{"batch timestamp beyond int64", "registry.store_batch", `{"hashes":["` + helloHash + `"],"signatures":[""],"signer":"` + wallet0Hex + `","timestamp":"18446744073709551615"}`, codeInvalidParams},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rpcErr := callError(t, s, tc.method, tc.params)
			if rpcErr.Code != tc.code {
				t.Fatalf("expected code %d, got %d (%s)", tc.code, rpcErr.Code, rpcErr.Message)
			}
		})
	}

	rpcErr := callError(t, s, "registry.store_batch", `[["`+helloHash+`"],[],"`+wallet0Hex+`"]`)
	data, ok := rpcErr.Data.(map[string]any)
	if !ok || data["hashes"] != float64(1) || data["signatures"] != float64(0) {
		t.Fatalf("expected mismatch lengths in data, got %v", rpcErr.Data)
	}
}

func TestRPCStoreBatchAllOrNothing(t *testing.T) {
	s := newTestServer(t, Options{})

	pending := call(t, s, "registry.store", `["`+otherHash+`","`+wallet0Hex+`",""]`)
	call(t, s, "registry.await", `["`+pending["pending_id"].(string)+`"]`)

	rpcErr := callError(t, s, "registry.store_batch", `{"hashes":["`+helloHash+`","`+otherHash+`"],"signatures":["",""],"signer":"`+wallet0Hex+`"}`)
	if rpcErr.Code != codeDocumentExists {
		t.Fatalf("expected code %d, got %d", codeDocumentExists, rpcErr.Code)
	}
	count := call(t, s, "registry.count", `[]`)
	if count["count"] != float64(1) {
		t.Fatalf("failed batch must not store anything, count %v", count["count"])
	}

	batch := call(t, s, "registry.store_batch", `{"hashes":["`+helloHash+`"],"signatures":[""],"signer":"`+wallet0Hex+`","timestamp":42}`)
	call(t, s, "registry.await", `["`+batch["pending_id"].(string)+`"]`)
	record := call(t, s, "registry.get", `["`+helloHash+`"]`)
	if record["timestamp"] != float64(42) {
		t.Fatalf("expected explicit timestamp 42, got %v", record["timestamp"])
	}
}

func TestRPCIdempotentStoreReplay(t *testing.T) {
	s := newTestServer(t, Options{})
	body := `{"jsonrpc":"2.0","id":1,"method":"registry.store","params":["` + otherHash + `","` + wallet0Hex + `",""]}`
	headers := map[string]string{rpcIdempotencyHeader: "store-1"}

	first := decodeRPCResponse(t, rpcCallWithHeaders(t, s, body, headers))
	if first.Error != nil {
		t.Fatalf("first store failed: %+v", first.Error)
	}
	firstID := first.Result.(map[string]any)["pending_id"]
	call(t, s, "registry.await", `["`+firstID.(string)+`"]`)

	replay := decodeRPCResponse(t, rpcCallWithHeaders(t, s, body, headers))
	if replay.Error != nil {
		t.Fatalf("replayed store must not fail, got %+v", replay.Error)
	}
	if replay.Result.(map[string]any)["pending_id"] != firstID {
		t.Fatalf("expected replayed pending id %v, got %v", firstID, replay.Result)
	}

	other := `{"jsonrpc":"2.0","id":2,"method":"registry.store","params":["` + helloHash + `","` + wallet0Hex + `",""]}`
	conflict := decodeRPCResponse(t, rpcCallWithHeaders(t, s, other, headers))
	if conflict.Error == nil || conflict.Error.Code != codeIdempotencyConflict {
		t.Fatalf("expected code %d, got %+v", codeIdempotencyConflict, conflict.Error)
	}

	noKey := decodeRPCResponse(t, rpcCall(t, s, body, ""))
	if noKey.Error == nil || noKey.Error.Code != codeDocumentExists {
		t.Fatalf("expected duplicate without key, got %+v", noKey.Error)
	}
}

func TestRPCRateLimit(t *testing.T) {
	s := newTestServer(t, Options{RateLimit: ratelimiter.Config{RPS: 0.001, Burst: 2}})
	body := `{"jsonrpc":"2.0","id":1,"method":"health_check"}`

	for i := 0; i < 2; i++ {
		if rec := rpcCall(t, s, body, ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	if rec := rpcCall(t, s, body, ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestRPCBodyTooLarge(t *testing.T) {
	s := newTestServer(t, Options{})
	body := `{"jsonrpc":"2.0","id":1,"method":"document.hash","params":["` + strings.Repeat("a", int(maxRPCBodyBytes)) + `"]}`

	rec := rpcCall(t, s, body, "")
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}
