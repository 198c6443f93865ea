package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchServices_FiltersByProtocolAndTag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"services":[
			{"name":"Node A [phone]","ip":"10.0.0.1","link":"","protocol":"phone"},
			{"name":"Node B","ip":"10.0.0.2","link":"","protocol":"web"}
		]}`))
	}))
	defer srv.Close()

	c := New(2 * time.Second)
	services, err := c.FetchServices(context.Background(), []string{srv.Listener.Addr().String()}, "phone")
	if err != nil {
		t.Fatalf("FetchServices error: %v", err)
	}

	if len(services) != 1 || services[0].IP != "10.0.0.1" {
		t.Fatalf("expected one phone service, got %+v", services)
	}
}

func TestFetchServices_FailsOverToNextNode(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"services":[]}`))
	}))
	defer good.Close()

	c := New(time.Second)
	nodes := []string{"127.0.0.1:1", good.Listener.Addr().String()}

	services, err := c.FetchServices(context.Background(), nodes, "phone")
	if err != nil {
		t.Fatalf("expected fail-over success, got error: %v", err)
	}

	if len(services) != 0 {
		t.Fatalf("expected empty services, got %+v", services)
	}
}

func TestFetchServices_AllNodesFail(t *testing.T) {
	c := New(200 * time.Millisecond)
	_, err := c.FetchServices(context.Background(), []string{"127.0.0.1:1", "127.0.0.1:2"}, "phone")
	if err == nil {
		t.Fatalf("expected an error when all nodes fail")
	}
}

func TestFetchServices_NonJSONIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := New(time.Second)
	_, err := c.FetchServices(context.Background(), []string{srv.Listener.Addr().String()}, "phone")
	if err == nil {
		t.Fatalf("expected decode error")
	}
}
