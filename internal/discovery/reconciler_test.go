package discovery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeLister struct {
	calls   int
	entries [][]string // per-call responses; last one repeats
	err     error
}

func (f *fakeLister) Services(context.Context) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.entries) == 0 {
		return nil, nil
	}
	i := f.calls - 1
	if i >= len(f.entries) {
		i = len(f.entries) - 1
	}
	return f.entries[i], nil
}

func TestConfirmRegistrationExhaustsExactBudget(t *testing.T) {
	fl := &fakeLister{entries: [][]string{{}}}
	var sleeps int
	r := &Reconciler{Lister: fl, Sleep: func(time.Duration) { sleeps++ }}

	got := r.ConfirmRegistration(context.Background(), "auth_service", 5, time.Second)
	if got != NotRegistered {
		t.Fatalf("expected NotRegistered, got %v", got)
	}
	if fl.calls != 5 {
		t.Fatalf("expected exactly 5 polls, got %d", fl.calls)
	}
	// No sleep after the final attempt.
	if sleeps != 4 {
		t.Fatalf("expected 4 inter-attempt sleeps, got %d", sleeps)
	}
}

func TestConfirmRegistrationUnreachableAbortsImmediately(t *testing.T) {
	fl := &fakeLister{err: errors.New("connection refused")}
	var sleeps int
	r := &Reconciler{Lister: fl, Sleep: func(time.Duration) { sleeps++ }}

	got := r.ConfirmRegistration(context.Background(), "auth_service", 5, time.Second)
	if got != RegistryUnreachable {
		t.Fatalf("expected RegistryUnreachable, got %v", got)
	}
	if fl.calls != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", fl.calls)
	}
	if sleeps != 0 {
		t.Fatalf("expected no sleeps, got %d", sleeps)
	}
}

func TestConfirmRegistrationShortCircuits(t *testing.T) {
	fl := &fakeLister{entries: [][]string{
		{},
		{"auth_service-host1-8202"},
	}}
	var sleeps int
	r := &Reconciler{Lister: fl, Sleep: func(time.Duration) { sleeps++ }}

	got := r.ConfirmRegistration(context.Background(), "auth_service", 5, time.Second)
	if got != Registered {
		t.Fatalf("expected Registered, got %v", got)
	}
	if fl.calls != 2 || sleeps != 1 {
		t.Fatalf("expected 2 polls and 1 sleep, got %d/%d", fl.calls, sleeps)
	}
}

func TestConfirmRegistrationSubstringMatch(t *testing.T) {
	fl := &fakeLister{entries: [][]string{{"payment_service-nodeA-8207"}}}
	r := &Reconciler{Lister: fl, Sleep: func(time.Duration) {}}
	if got := r.ConfirmRegistration(context.Background(), "payment_service", 1, 0); got != Registered {
		t.Fatalf("substring match failed: %v", got)
	}
	if got := r.ConfirmRegistration(context.Background(), "wallet_service", 1, 0); got != NotRegistered {
		t.Fatalf("expected NotRegistered for absent name, got %v", got)
	}
}

func TestConfirmRegistrationCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fl := &fakeLister{entries: [][]string{{}}}
	r := &Reconciler{Lister: fl, Sleep: func(time.Duration) {}}
	if got := r.ConfirmRegistration(ctx, "x", 3, 0); got != RegistryUnreachable {
		t.Fatalf("cancelled context should read as unreachable, got %v", got)
	}
	if fl.calls != 0 {
		t.Fatalf("no polls expected after cancel, got %d", fl.calls)
	}
}

func TestConfirmRegistrationCancelDuringSleep(t *testing.T) {
	// Cancel mid-interval: the poll must return well before the 5s interval
	// elapses instead of sleeping out the remaining attempts.
	fl := &fakeLister{entries: [][]string{{}}}
	r := &Reconciler{Lister: fl}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	got := r.ConfirmRegistration(ctx, "auth_service", 3, 5*time.Second)
	if got != RegistryUnreachable {
		t.Fatalf("expected RegistryUnreachable after cancel, got %v", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("cancel must interrupt the sleep, took %v", elapsed)
	}
	if fl.calls != 1 {
		t.Fatalf("expected 1 poll before cancel, got %d", fl.calls)
	}
}

func TestConsulClientServices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/agent/services" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"auth_service-host1-8202": {"Service": "auth_service", "Port": 8202},
			"order_service-host1-8210": {"Service": "order_service", "Port": 8210}
		}`))
	}))
	defer srv.Close()

	c := NewConsulClient(srv.URL, time.Second)
	listed, err := c.Services(context.Background())
	if err != nil {
		t.Fatalf("services: %v", err)
	}
	found := map[string]bool{}
	for _, s := range listed {
		found[s] = true
	}
	for _, want := range []string{"auth_service-host1-8202", "auth_service", "order_service"} {
		if !found[want] {
			t.Fatalf("missing %q in %v", want, listed)
		}
	}
}

func TestConsulClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewConsulClient(srv.URL, time.Second)
	if _, err := c.Services(context.Background()); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestConsulClientUnreachable(t *testing.T) {
	c := NewConsulClient("http://127.0.0.1:1", 200*time.Millisecond)
	if _, err := c.Services(context.Background()); err == nil {
		t.Fatal("expected transport error")
	}
}
