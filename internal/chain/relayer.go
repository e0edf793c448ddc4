package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/evetabi/buyback/internal/config"
)

// Relay task states reported by the sponsorship service.
const (
	taskStateSuccess  = "ExecSuccess"
	taskStateReverted = "ExecReverted"
	taskStateCancel   = "Cancelled"
)

// Relayer wraps the gas-sponsorship service: the executor signs a digest
// authorizing the call and the relay submits it on-chain, paying gas, so the
// executor wallet needs no native funds. When no relayer is configured the
// trade executor falls back to self-paid submission.
type Relayer struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	pollEvery  time.Duration
	pollBudget time.Duration
}

// NewRelayer constructs a Relayer, or returns nil when sponsorship is
// disabled in config.
func NewRelayer(cfg *config.RelayerConfig) *Relayer {
	if !cfg.Enabled {
		return nil
	}
	return &Relayer{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		pollEvery:  cfg.PollEvery,
		pollBudget: cfg.PollBudget,
	}
}

// sponsoredCallRequest is the relay submission payload.
type sponsoredCallRequest struct {
	ChainID   int64  `json:"chainId"`
	Target    string `json:"target"`
	Data      string `json:"data"`
	User      string `json:"user"`
	Signature string `json:"userSignature"`
}

// SponsoredCall submits target/data for sponsored execution and blocks until
// the relay reports a final state, returning the on-chain transaction hash.
// user and signature authenticate the executor's intent (see CallDigest).
func (r *Relayer) SponsoredCall(ctx context.Context, chainID int64, target, data, user, signature string) (string, error) {
	reqBody, err := json.Marshal(sponsoredCallRequest{
		ChainID:   chainID,
		Target:    target,
		Data:      data,
		User:      user,
		Signature: signature,
	})
	if err != nil {
		return "", fmt.Errorf("relayer: marshal request: %w", err)
	}

	body, err := r.doPost(ctx, r.baseURL+"/relays/v2/sponsored-call", reqBody)
	if err != nil {
		return "", err
	}

	var submitted struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(body, &submitted); err != nil {
		return "", fmt.Errorf("relayer: parse submit response: %w", err)
	}
	if submitted.TaskID == "" {
		return "", fmt.Errorf("relayer: empty taskId in response: %s", string(body))
	}

	return r.waitForTask(ctx, submitted.TaskID)
}

// waitForTask polls the relay task status until it settles or the poll
// budget is exhausted.
func (r *Relayer) waitForTask(ctx context.Context, taskID string) (string, error) {
	deadline := time.Now().Add(r.pollBudget)

	for {
		body, err := r.doGet(ctx, fmt.Sprintf("%s/tasks/status/%s", r.baseURL, taskID))
		if err != nil {
			return "", err
		}

		var status struct {
			Task struct {
				TaskState       string `json:"taskState"`
				TransactionHash string `json:"transactionHash"`
			} `json:"task"`
		}
		if err := json.Unmarshal(body, &status); err != nil {
			return "", fmt.Errorf("relayer: parse task status: %w", err)
		}

		switch status.Task.TaskState {
		case taskStateSuccess:
			return status.Task.TransactionHash, nil
		case taskStateReverted:
			return status.Task.TransactionHash, fmt.Errorf("relayer: task %s reverted on-chain", taskID)
		case taskStateCancel:
			return "", fmt.Errorf("relayer: task %s cancelled by relay", taskID)
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("relayer: task %s not settled within %s", taskID, r.pollBudget)
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("relayer: %w", ctx.Err())
		case <-time.After(r.pollEvery):
		}
	}
}

// ── HTTP helpers ──────────────────────────────────────────────────────────────

func (r *Relayer) doPost(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("relayer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	return r.do(req)
}

func (r *Relayer) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("relayer: build request: %w", err)
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	return r.do(req)
}

func (r *Relayer) do(req *http.Request) ([]byte, error) {
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relayer: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("relayer: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("relayer: relay error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
