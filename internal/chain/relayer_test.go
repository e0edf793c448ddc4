package chain_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/evetabi/buyback/internal/chain"
	"github.com/evetabi/buyback/internal/config"
)

// mockRelay serves the sponsorship API: submission returns a task id, and
// the status endpoint walks through the scripted states one poll at a time.
func mockRelay(t *testing.T, states []string, txHash string) (*httptest.Server, *int) {
	t.Helper()
	polls := new(int)
	mux := http.NewServeMux()
	mux.HandleFunc("/relays/v2/sponsored-call", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		for _, field := range []string{"chainId", "target", "data", "user", "userSignature"} {
			if _, ok := body[field]; !ok {
				t.Errorf("submission missing field %q", field)
			}
		}
		json.NewEncoder(w).Encode(map[string]string{"taskId": "task-123"})
	})
	mux.HandleFunc("/tasks/status/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "task-123") {
			http.NotFound(w, r)
			return
		}
		state := states[len(states)-1]
		if *polls < len(states) {
			state = states[*polls]
		}
		*polls++
		json.NewEncoder(w).Encode(map[string]any{
			"task": map[string]string{
				"taskState":       state,
				"transactionHash": txHash,
			},
		})
	})
	return httptest.NewServer(mux), polls
}

func newTestRelayer(t *testing.T, baseURL string) *chain.Relayer {
	t.Helper()
	r := chain.NewRelayer(&config.RelayerConfig{
		Enabled:    true,
		BaseURL:    baseURL,
		APIKey:     "test-key",
		PollEvery:  5 * time.Millisecond,
		PollBudget: 200 * time.Millisecond,
	})
	if r == nil {
		t.Fatal("enabled config must yield a relayer")
	}
	return r
}

func TestRelayer_Disabled(t *testing.T) {
	if r := chain.NewRelayer(&config.RelayerConfig{Enabled: false}); r != nil {
		t.Fatal("disabled config must yield a nil relayer")
	}
}

func TestSponsoredCall_Success(t *testing.T) {
	srv, polls := mockRelay(t, []string{"CheckPending", "ExecPending", "ExecSuccess"}, "0xabc123")
	defer srv.Close()

	r := newTestRelayer(t, srv.URL)
	hash, err := r.SponsoredCall(context.Background(), 3073, "0xTarget", "0xdata", "0xUser", "0xsig")
	if err != nil {
		t.Fatalf("SponsoredCall: %v", err)
	}
	if hash != "0xabc123" {
		t.Errorf("tx hash = %s, want 0xabc123", hash)
	}
	if *polls < 3 {
		t.Errorf("polled %d times, want at least 3 (settled on the third)", *polls)
	}
}

func TestSponsoredCall_Reverted(t *testing.T) {
	srv, _ := mockRelay(t, []string{"ExecReverted"}, "0xdead")
	defer srv.Close()

	r := newTestRelayer(t, srv.URL)
	hash, err := r.SponsoredCall(context.Background(), 3073, "0xTarget", "0xdata", "0xUser", "0xsig")
	if err == nil {
		t.Fatal("expected error for a reverted task")
	}
	// The hash is still surfaced so the failure is traceable on-chain.
	if hash != "0xdead" {
		t.Errorf("tx hash = %s, want 0xdead", hash)
	}
}

func TestSponsoredCall_Cancelled(t *testing.T) {
	srv, _ := mockRelay(t, []string{"Cancelled"}, "")
	defer srv.Close()

	r := newTestRelayer(t, srv.URL)
	if _, err := r.SponsoredCall(context.Background(), 3073, "0xTarget", "0xdata", "0xUser", "0xsig"); err == nil {
		t.Fatal("expected error for a cancelled task")
	}
}

func TestSponsoredCall_PollBudgetExhausted(t *testing.T) {
	srv, _ := mockRelay(t, []string{"ExecPending"}, "")
	defer srv.Close()

	r := chain.NewRelayer(&config.RelayerConfig{
		Enabled:    true,
		BaseURL:    srv.URL,
		PollEvery:  5 * time.Millisecond,
		PollBudget: 20 * time.Millisecond,
	})
	if _, err := r.SponsoredCall(context.Background(), 3073, "0xTarget", "0xdata", "0xUser", "0xsig"); err == nil {
		t.Fatal("expected error when the task never settles")
	}
}

func TestSponsoredCall_ContextCancelled(t *testing.T) {
	srv, _ := mockRelay(t, []string{"ExecPending"}, "")
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newTestRelayer(t, srv.URL)
	if _, err := r.SponsoredCall(ctx, 3073, "0xTarget", "0xdata", "0xUser", "0xsig"); err == nil {
		t.Fatal("expected error for a cancelled context")
	}
}

func TestSponsoredCall_RelayDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	r := newTestRelayer(t, srv.URL)
	if _, err := r.SponsoredCall(context.Background(), 3073, "0xTarget", "0xdata", "0xUser", "0xsig"); err == nil {
		t.Fatal("expected error when the relay is down")
	}
}
