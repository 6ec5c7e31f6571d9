package server

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"SynthLedger/internal/engine"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/registry"
	"SynthLedger/internal/testutil"
	"SynthLedger/internal/token"
)

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newTestRouter(t *testing.T) (*gin.Engine, *observability.HealthChecker) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	feed := oracle.NewStaticFeed(new(big.Int).Mul(big.NewInt(2000), big.NewInt(1e8)))
	reg, err := registry.New([]ledger.Asset{"WETH"}, []oracle.PriceFeed{feed})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	wethTok := testutil.NewMockCollateralToken(engine.DefaultCustody)
	wethTok.SetBalance("alice", wad(100))

	eng, err := engine.New(engine.Config{
		Params:    engine.DefaultParams(),
		Registry:  reg,
		Synthetic: testutil.NewMockSyntheticToken(),
		Collateral: map[ledger.Asset]token.CollateralToken{
			"WETH": wethTok,
		},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	health := observability.NewHealthChecker()
	return NewHandler(eng, health).Router(), health
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestDepositEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/collateral/deposit",
		`{"user":"alice","asset":"WETH","amount":"10000000000000000000"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/v1/accounts/alice/collateral/WETH", "")
	if w.Code != http.StatusOK {
		t.Fatalf("balance status = %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["balance"] != "10000000000000000000" {
		t.Errorf("balance = %s, want 10 WETH", resp["balance"])
	}
}

func TestDepositRejectsBadAmount(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, body := range []string{
		`{"user":"alice","asset":"WETH","amount":"ten"}`,
		`{"user":"alice","asset":"WETH","amount":"0"}`,
		`{"user":"alice","asset":"WETH"}`,
	} {
		w := doJSON(t, router, http.MethodPost, "/v1/collateral/deposit", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, w.Code)
		}
	}
}

func TestDepositRejectsUnknownAsset(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/collateral/deposit",
		`{"user":"alice","asset":"DOGE","amount":"1000000000000000000"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestMintOverLimitReturnsConflict(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/collateral/deposit",
		`{"user":"alice","asset":"WETH","amount":"1000000000000000000"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("deposit status = %d", w.Code)
	}

	// $2000 collateral backs at most $1000.
	w = doJSON(t, router, http.MethodPost, "/v1/debt/mint",
		`{"user":"alice","amount":"2000000000000000000000"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["health_factor"] == "" {
		t.Error("conflict response missing health_factor")
	}
}

func TestOpenPositionEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/positions/open",
		`{"user":"alice","asset":"WETH","collateral_amount":"10000000000000000000","debt_amount":"100000000000000000000"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/v1/accounts/alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("account status = %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["debt"] != "100000000000000000000" {
		t.Errorf("debt = %s, want 100e18", resp["debt"])
	}
	if resp["collateral_value"] != "20000000000000000000000" {
		t.Errorf("collateral_value = %s, want 20000e18", resp["collateral_value"])
	}
}

func TestParamsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/params", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["liquidation_threshold"] != "50" {
		t.Errorf("threshold = %s, want 50", resp["liquidation_threshold"])
	}
	if resp["liquidation_bonus"] != "10" {
		t.Errorf("bonus = %s, want 10", resp["liquidation_bonus"])
	}
}

func TestAssetsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/assets", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string][]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp["assets"]) != 1 || resp["assets"][0] != "WETH" {
		t.Errorf("assets = %v, want [WETH]", resp["assets"])
	}
}

func TestReadinessGatesOnHealthChecker(t *testing.T) {
	router, health := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/readyz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before ready = %d, want 503", w.Code)
	}

	health.SetReady(true)
	w = doJSON(t, router, http.MethodGet, "/readyz", "")
	if w.Code != http.StatusOK {
		t.Errorf("readyz after ready = %d, want 200", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", w.Code)
	}
}
