// Package scanapi talks to an external scan engine over HTTP when
// ANALYZER_MODE=remote.
package scanapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/scanworks/reportbroker/internal/core/domain"
	"github.com/scanworks/reportbroker/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, apiKey string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type analyzeResponse struct {
	Type       string   `json:"type"`
	Percentage *float64 `json:"percentage"`
}

func (c *Client) Analyze(ctx context.Context, data []byte) (domain.AnalysisResult, error) {
	var response analyzeResponse

	call := func(callCtx context.Context) error {
		return c.postAnalyze(callCtx, data, &response)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "scanapi.analyze", call, classifyScanAPIError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.AnalysisResult{}, wrapTemporaryIfNeeded(err)
	}

	switch response.Type {
	case string(domain.ReportSimilarity):
		return domain.AnalysisResult{Type: domain.ReportSimilarity, Percentage: response.Percentage}, nil
	case string(domain.ReportAI):
		return domain.AnalysisResult{Type: domain.ReportAI, Percentage: response.Percentage}, nil
	default:
		return domain.AnalysisResult{}, domain.WrapError(domain.ErrInvalidInput, "classify report",
			fmt.Errorf("scan engine returned unknown report type %q", response.Type))
	}
}

func (c *Client) postAnalyze(ctx context.Context, data []byte, out *analyzeResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/analyze", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("analyze request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPStatusError{
			Operation:  "analyze",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode analyze response: %w", err)
	}
	return nil
}
