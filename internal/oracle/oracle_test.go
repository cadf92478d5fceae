package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNilBaseURLDisablesClient(t *testing.T) {
	c := New("", time.Second, nil)
	if c != nil {
		t.Fatalf("expected nil client for empty baseURL")
	}
	_, ok := c.Price(context.Background(), "0xtoken")
	if ok {
		t.Fatalf("expected ok=false from a nil *Client")
	}
}

func TestPriceFetchesFromUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price_usd": 1.5}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second, nil)
	price, ok := c.Price(context.Background(), "0xtoken")
	if !ok || price != 1.5 {
		t.Fatalf("expected price=1.5 ok=true, got %v %v", price, ok)
	}
}

func TestPriceUpstreamFailureReturnsNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second, nil)
	_, ok := c.Price(context.Background(), "0xtoken")
	if ok {
		t.Fatalf("expected ok=false on upstream 500")
	}
}
