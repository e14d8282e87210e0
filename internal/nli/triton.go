package nli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goldfish-inc/oceanid/twcs-miner/internal/metrics"
)

// TritonRequest is a KServe v2 inference request.
type TritonRequest struct {
	Inputs  []TritonTensor `json:"inputs"`
	Outputs []TritonOutput `json:"outputs,omitempty"`
}

// TritonTensor represents a tensor in Triton format
type TritonTensor struct {
	Name     string      `json:"name"`
	Shape    []int       `json:"shape"`
	DataType string      `json:"datatype"`
	Data     interface{} `json:"data"`
}

// TritonOutput selects an output tensor by name.
type TritonOutput struct {
	Name string `json:"name"`
}

// TritonOutputTensor is one output of an inference response. Numeric data is
// decoded as float64 regardless of the declared datatype.
type TritonOutputTensor struct {
	Name     string    `json:"name"`
	DataType string    `json:"datatype"`
	Shape    []int     `json:"shape"`
	Data     []float64 `json:"data"`
}

// TritonResponse represents the response from Triton
type TritonResponse struct {
	ModelName    string               `json:"model_name"`
	ModelVersion string               `json:"model_version"`
	Outputs      []TritonOutputTensor `json:"outputs"`
}

// Output returns the named output tensor.
func (r *TritonResponse) Output(name string) (*TritonOutputTensor, error) {
	for i := range r.Outputs {
		if r.Outputs[i].Name == name {
			return &r.Outputs[i], nil
		}
	}
	return nil, fmt.Errorf("output %q missing from %s response", name, r.ModelName)
}

// TritonClient sends inference requests to a Triton server, optionally behind
// Cloudflare Access.
type TritonClient struct {
	BaseURL          string
	Model            string
	CFAccessClientID string
	CFAccessSecret   string
	HTTPClient       *http.Client
}

// NewTritonClient returns a client with the given request timeout.
func NewTritonClient(baseURL, model string, timeout time.Duration) *TritonClient {
	return &TritonClient{
		BaseURL:    baseURL,
		Model:      model,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Infer posts inputs to /v2/models/<model>/infer and decodes the response.
func (c *TritonClient) Infer(ctx context.Context, inputs []TritonTensor, outputs ...string) (*TritonResponse, error) {
	start := time.Now()
	resp, err := c.infer(ctx, inputs, outputs)
	metrics.NLIRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.NLIRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.NLIRequestsTotal.WithLabelValues("ok").Inc()
	return resp, nil
}

func (c *TritonClient) infer(ctx context.Context, inputs []TritonTensor, outputs []string) (*TritonResponse, error) {
	url := fmt.Sprintf("%s/v2/models/%s/infer", c.BaseURL, c.Model)

	reqBody := TritonRequest{Inputs: inputs}
	for _, name := range outputs {
		reqBody.Outputs = append(reqBody.Outputs, TritonOutput{Name: name})
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	// Add Cloudflare Access headers if configured
	if c.CFAccessClientID != "" && c.CFAccessSecret != "" {
		req.Header.Set("CF-Access-Client-Id", c.CFAccessClientID)
		req.Header.Set("CF-Access-Client-Secret", c.CFAccessSecret)
	}

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("triton request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("triton error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var tritonResp TritonResponse
	if err := json.NewDecoder(resp.Body).Decode(&tritonResp); err != nil {
		return nil, fmt.Errorf("failed to decode triton response: %w", err)
	}
	return &tritonResp, nil
}
