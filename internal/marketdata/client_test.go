package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rewired-gh/optionlab/internal/models"
)

const vixBody = `{"chart":{"result":[{"meta":{"regularMarketPrice":18.9},
"indicators":{"quote":[{"close":[17.456,null]}]}}],"error":null}}`

// 2025-01-17 and 2025-02-21 at 00:00 UTC.
const listBody = `{"optionChain":{"result":[{"underlyingSymbol":"AAPL",
"expirationDates":[1737072000,1740096000],"options":[]}],"error":null}}`

const chainBody = `{"optionChain":{"result":[{"underlyingSymbol":"AAPL",
"expirationDates":[1737072000],"options":[{"expirationDate":1737072000,
"calls":[{"strike":110,"impliedVolatility":0.31,"volume":5,"openInterest":20},
         {"strike":100,"impliedVolatility":0.25,"openInterest":40}],
"puts":[{"strike":95,"impliedVolatility":0.28,"volume":12,"openInterest":3}]}]}],"error":null}}`

func newTestClient(url string) *Client {
	return NewClient(url, 2*time.Second, ClientConfig{MaxRetries: 3, RetryDelayBase: time.Millisecond})
}

func TestFetchVolatilityIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v8/finance/chart/^VIX" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("range"); got != "1d" {
			t.Errorf("range = %q, want 1d", got)
		}
		_, _ = w.Write([]byte(vixBody))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).FetchVolatilityIndex(context.Background())
	if err != nil {
		t.Fatalf("FetchVolatilityIndex() error = %v", err)
	}
	if got != 17.46 {
		t.Errorf("FetchVolatilityIndex() = %v, want 17.46", got)
	}
}

func TestFetchVolatilityIndex_FallsBackToMeta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"regularMarketPrice":21.3},"indicators":{"quote":[{"close":[null]}]}}]}}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).FetchVolatilityIndex(context.Background())
	if err != nil {
		t.Fatalf("FetchVolatilityIndex() error = %v", err)
	}
	if got != 21.3 {
		t.Errorf("FetchVolatilityIndex() = %v, want 21.3", got)
	}
}

func TestVolatilityIndexOrFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	if _, err := c.FetchVolatilityIndex(context.Background()); !errors.Is(err, models.ErrDataUnavailable) {
		t.Errorf("FetchVolatilityIndex() error = %v, want ErrDataUnavailable", err)
	}

	got, usedFallback := c.VolatilityIndexOrFallback(context.Background(), 15)
	if !usedFallback || got != 15 {
		t.Errorf("VolatilityIndexOrFallback() = (%v, %v), want (15, true)", got, usedFallback)
	}
}

func TestGetJSON_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(vixBody))
	}))
	defer srv.Close()

	got, usedFallback := newTestClient(srv.URL).VolatilityIndexOrFallback(context.Background(), 15)
	if usedFallback || got != 17.46 {
		t.Errorf("VolatilityIndexOrFallback() = (%v, %v), want (17.46, false)", got, usedFallback)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestGetJSON_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchVolatilityIndex(context.Background())
	if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
		t.Errorf("FetchVolatilityIndex() error = %v, want max retries exceeded", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestFetchExpirations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v7/finance/options/AAPL" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if d := r.URL.Query().Get("date"); d != "" {
			t.Errorf("date = %q, want empty", d)
		}
		_, _ = w.Write([]byte(listBody))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).FetchExpirations(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("FetchExpirations() error = %v", err)
	}
	want := []string{"2025-01-17", "2025-02-21"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FetchExpirations() = %v, want %v", got, want)
	}
}

func TestFetchChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d := r.URL.Query().Get("date"); d != "1737072000" {
			t.Errorf("date = %q, want 1737072000", d)
		}
		_, _ = w.Write([]byte(chainBody))
	}))
	defer srv.Close()

	chain, err := newTestClient(srv.URL).FetchChain(context.Background(), "AAPL", "2025-01-17")
	if err != nil {
		t.Fatalf("FetchChain() error = %v", err)
	}

	wantCalls := []models.OptionChainRow{
		{Strike: 100, ImpliedVolatility: 0.25, Volume: 0, OpenInterest: 40},
		{Strike: 110, ImpliedVolatility: 0.31, Volume: 5, OpenInterest: 20},
	}
	if !reflect.DeepEqual(chain.Calls, wantCalls) {
		t.Errorf("Calls = %+v, want %+v", chain.Calls, wantCalls)
	}
	if len(chain.Puts) != 1 || chain.Puts[0].Volume != 12 {
		t.Errorf("Puts = %+v, want one row with volume 12", chain.Puts)
	}
}

func TestFetchChain_InvalidExpiration(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1").FetchChain(context.Background(), "AAPL", "01/17/2025")
	if err == nil {
		t.Error("FetchChain() expected error for malformed expiration")
	}
}

func TestFetchEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/BAD"):
			_, _ = w.Write([]byte(`{"optionChain":{"result":[],"error":{"code":"Not Found","description":"No data found"}}}`))
		case r.URL.Query().Get("date") == "":
			_, _ = w.Write([]byte(listBody))
		default:
			_, _ = w.Write([]byte(chainBody))
		}
	}))
	defer srv.Close()

	entries, failures := newTestClient(srv.URL).FetchEntries(context.Background(), []string{"AAPL", "BAD"}, "")

	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Ticker != "AAPL" || entries[0].Expiration != "2025-01-17" || entries[1].Expiration != "2025-02-21" {
		t.Errorf("entries = %+v", entries)
	}

	if len(failures) != 1 {
		t.Fatalf("len(failures) = %d, want 1", len(failures))
	}
	if failures[0].Ticker != "BAD" || !errors.Is(failures[0].Err, models.ErrDataUnavailable) {
		t.Errorf("failure = %+v, want BAD wrapping ErrDataUnavailable", failures[0])
	}
}

func TestFetchEntries_SingleExpiration(t *testing.T) {
	var listCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("date") == "" {
			listCalls.Add(1)
		}
		_, _ = w.Write([]byte(chainBody))
	}))
	defer srv.Close()

	entries, failures := newTestClient(srv.URL).FetchEntries(context.Background(), []string{"AAPL", "MSFT"}, "2025-01-17")
	if len(failures) != 0 {
		t.Errorf("failures = %v, want none", failures)
	}
	if len(entries) != 2 {
		t.Errorf("len(entries) = %d, want 2", len(entries))
	}
	if n := listCalls.Load(); n != 0 {
		t.Errorf("expiration list calls = %d, want 0", n)
	}
}
