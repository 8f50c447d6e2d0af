package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tnqbao/gau-vm-session-service/config"
	"github.com/tnqbao/gau-vm-session-service/entity"
	"github.com/tnqbao/gau-vm-session-service/utils"
)

type CreditCheckRequest struct {
	WorkspaceID uuid.UUID     `json:"workspace_id"`
	VMType      entity.VMType `json:"vm_type"`
	Seconds     int64         `json:"seconds"`
}

type CreditCheckResponse struct {
	Sufficient bool `json:"sufficient"`
}

type CreditUsageResponse struct {
	TransactionID string `json:"transaction_id"`
}

// CreditService talks to the external credit/billing service.
type CreditService struct {
	CreditServiceURL string
	PrivateKey       string
	client           *retryablehttp.Client
}

func InitCreditService(cfg *config.EnvConfig) *CreditService {
	url := cfg.ExternalService.CreditServiceURL
	if url == "" {
		panic("Credit service URL is not configured")
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.HTTPClient.Timeout = 10 * time.Second
	retryClient.Logger = nil

	return NewCreditService(url, cfg.PrivateKey, retryClient)
}

func NewCreditService(baseURL, privateKey string, client *retryablehttp.Client) *CreditService {
	if client == nil {
		client = retryablehttp.NewClient()
		client.Logger = nil
	}
	return &CreditService{
		CreditServiceURL: strings.TrimSuffix(baseURL, "/"),
		PrivateKey:       privateKey,
		client:           client,
	}
}

// HasSufficientCredits asks whether the workspace can pay for seconds of vmType.
func (s *CreditService) HasSufficientCredits(ctx context.Context, workspaceID uuid.UUID, vmType entity.VMType, seconds int64) (bool, error) {
	var out CreditCheckResponse
	err := s.post(ctx, "/api/v1/credits/check", "", CreditCheckRequest{
		WorkspaceID: workspaceID,
		VMType:      vmType,
		Seconds:     seconds,
	}, &out)
	if err != nil {
		return false, err
	}
	return out.Sufficient, nil
}

// RecordUsage posts a usage record and returns the billing transaction id.
// The session id is sent as the idempotency key so retries never double bill.
func (s *CreditService) RecordUsage(ctx context.Context, usage entity.UsageRecord) (string, error) {
	var out CreditUsageResponse
	if err := s.post(ctx, "/api/v1/credits/usage", usage.SessionID.String(), usage, &out); err != nil {
		return "", err
	}
	if out.TransactionID == "" {
		return "", fmt.Errorf("credit service returned empty transaction id")
	}
	return out.TransactionID, nil
}

func (s *CreditService) post(ctx context.Context, path, idempotencyKey string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.CreditServiceURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.PrivateKey != "" {
		ts, sig := utils.SignRequest(s.PrivateKey, http.MethodPost, path, body, time.Now())
		req.Header.Set(utils.HeaderTimestamp, ts)
		req.Header.Set(utils.HeaderSignature, sig)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("credit service %s returned status %d: %s", path, resp.StatusCode, string(bytes.TrimSpace(respBody)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
