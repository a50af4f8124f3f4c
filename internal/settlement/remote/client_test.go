package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/settlement/internal/settlement"
)

func TestQuerySettlementsSendsQuery(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"totalSales":12.5,"week":10}],"number":1,"totalPages":3,"totalElements":25}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, nil)
	from := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	resp, err := client.QuerySettlements(context.Background(), settlement.Query{
		SellerID:    77,
		Granularity: settlement.GranularityWeekly,
		From:        from,
		To:          settlement.EndOfDay(from.AddDate(0, 0, 6)),
		Page:        1,
		Size:        10,
		Status:      "COMPLETED",
	})
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "/sellers/77/settlements", got.URL.Path)
	query := got.URL.Query()
	assert.Equal(t, "weekly", query.Get("granularity"))
	assert.Equal(t, "2025-03-03T00:00:00.000Z", query.Get("from"))
	assert.Equal(t, "2025-03-09T23:59:59.999Z", query.Get("to"))
	assert.Equal(t, "1", query.Get("page"))
	assert.Equal(t, "10", query.Get("size"))
	assert.Equal(t, "COMPLETED", query.Get("status"))

	assert.Equal(t, settlement.ResponsePaged, resp.Kind)
	require.Len(t, resp.Records, 1)
	require.NotNil(t, resp.Page)
	assert.Equal(t, 3, resp.Page.TotalPages)
	assert.Equal(t, 1, resp.Page.Page)
}

func TestQuerySettlementsOmitsEmptyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.URL.Query()["status"]; ok {
			t.Errorf("status should be omitted, got %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"totalSales":1}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, time.Second, nil).QuerySettlements(context.Background(), settlement.Query{Granularity: settlement.GranularityDaily})
	require.NoError(t, err)
	assert.Equal(t, settlement.ResponseSingle, resp.Kind)
}

func TestQuerySettlementsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).QuerySettlements(context.Background(), settlement.Query{Granularity: settlement.GranularityAll})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestQuerySettlementsMalformedBodyDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, time.Second, nil).QuerySettlements(context.Background(), settlement.Query{Granularity: settlement.GranularityMonthly})
	require.NoError(t, err)
	assert.Equal(t, settlement.ResponseEmpty, resp.Kind)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL, time.Second, nil).Ping(context.Background()))
}

func TestActiveSellers(t *testing.T) {
	var since string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sellers/active", r.URL.Path)
		since = r.URL.Query().Get("since")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sellerIds":[3,5,8]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, nil)
	ids, err := client.ActiveSellers(context.Background(), time.Date(2025, time.May, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 5, 8}, ids)
	assert.Equal(t, "2025-05-16T00:00:00.000Z", since)
}
