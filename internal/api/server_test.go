package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffl/batch-ingester/internal/api"
	"github.com/ffl/batch-ingester/internal/batch"
	"github.com/ffl/batch-ingester/internal/model"
	"github.com/ffl/batch-ingester/internal/pricing"
	"github.com/ffl/batch-ingester/internal/store"
	"github.com/ffl/batch-ingester/internal/trade"
)

const header = "customer_id,operation,amount,isin,value_date\n"

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// setup starts the API over a memory ledger where C1 holds 1000.00 cash and
// ISIN-A is priced at 50.00 on 2024-01-02.
func setup(t *testing.T) (*httptest.Server, *api.Hub) {
	t.Helper()
	ms := store.NewMemoryStore()
	ms.AddCustomer("C1")
	day, _ := model.ParseDate("2024-01-02")
	ms.AddCash(model.CashTransaction{CustomerID: "C1", ValueDate: day, Amount: d("1000.00")})
	ms.AddNav(model.NavRow{ISIN: "ISIN-A", NavDate: day, NavValue: d("50.00")})

	applier, err := trade.NewApplier(pricing.NewService(), trade.MinScale, trade.HalfEven)
	require.NoError(t, err)

	hub := api.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	coord := batch.NewCoordinator(ms, applier, hub)
	srv := httptest.NewServer(api.NewServer(coord, ms, hub).Routes())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, hub
}

func postBatch(t *testing.T, srv *httptest.Server, body string) (int, batch.Event) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/v1/batches", "text/csv", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var ev batch.Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ev))
	return resp.StatusCode, ev
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp.StatusCode
}

func TestSubmitBatch_Committed(t *testing.T) {
	srv, _ := setup(t)

	code, ev := postBatch(t, srv, header+"C1,BUY,200.00,ISIN-A,2024-01-02\n")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, batch.StatusCommitted, ev.Status)
	assert.Equal(t, 1, ev.Count)
	assert.NotEmpty(t, ev.BatchID)

	var cash map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/customers/C1/cash", &cash))
	assert.Equal(t, "800.00", cash["cash"])

	var holding map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/customers/C1/holdings/ISIN-A", &holding))
	assert.True(t, d(holding["units"]).Equal(d("4")), "units %s", holding["units"])
}

func TestSubmitBatch_Failed(t *testing.T) {
	srv, _ := setup(t)

	code, ev := postBatch(t, srv, header+"C1,BUY,2000.00,ISIN-A,2024-01-02\n")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, batch.StatusFailed, ev.Status)
	assert.Equal(t, 2, ev.Line)
	assert.Equal(t, "InsufficientCash", ev.Kind)
	assert.Contains(t, ev.Error, "failed at line 2: InsufficientCash")

	var cash map[string]string
	getJSON(t, srv.URL+"/api/v1/customers/C1/cash", &cash)
	assert.Equal(t, "1000.00", cash["cash"])
}

func TestSubmitBatch_MissingHeader(t *testing.T) {
	srv, _ := setup(t)

	code, ev := postBatch(t, srv, "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "MalformedRecord", ev.Kind)
	assert.Equal(t, 1, ev.Line)
}

func TestGetCash_UnknownCustomer(t *testing.T) {
	srv, _ := setup(t)

	var body map[string]string
	code := getJSON(t, srv.URL+"/api/v1/customers/C9/cash", &body)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "customer not found", body["error"])
}

func TestGetHolding_NoUnits(t *testing.T) {
	srv, _ := setup(t)

	var body map[string]string
	code := getJSON(t, srv.URL+"/api/v1/customers/C1/holdings/ISIN-Q", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0", body["units"])
}

func TestHealth(t *testing.T) {
	srv, _ := setup(t)

	var body map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestWebSocket_ReceivesOutcome(t *testing.T) {
	srv, hub := setup(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, posted := postBatch(t, srv, header)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev batch.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, posted.BatchID, ev.BatchID)
	assert.Equal(t, batch.StatusCommitted, ev.Status)
}
