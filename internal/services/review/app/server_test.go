package app

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestServerServeAndShutdown(t *testing.T) {
	server, err := New(Config{
		HTTPAddr:  "127.0.0.1:0",
		GRPCAddr:  "127.0.0.1:0",
		DBPath:    t.TempDir() + "/review.db",
		JWTSecret: string(testSecret),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx)
	}()

	if server.HTTPAddr() == "" || server.GRPCAddr() == "" {
		t.Fatal("listener addresses missing")
	}

	// Unauthenticated requests are rejected while the server is up.
	resp, err := http.Get("http://" + server.HTTPAddr() + "/v1/evaluations/none")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}
}

func TestNewRequiresJWTSecret(t *testing.T) {
	if _, err := New(Config{
		HTTPAddr: "127.0.0.1:0",
		GRPCAddr: "127.0.0.1:0",
		DBPath:   t.TempDir() + "/review.db",
	}); err == nil {
		t.Fatal("expected error without jwt secret")
	}
}
