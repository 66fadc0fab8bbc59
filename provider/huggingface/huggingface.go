package huggingface

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/jobquill/textgen/provider"
)

const (
	defaultBaseUrl = "https://api-inference.huggingface.co"
	defaultModel   = "mistralai/Mistral-7B-Instruct-v0.3"
	defaultTimeout = 30 * time.Second
)

// Endpoint calls the HuggingFace serverless inference API. The free tier is
// exhaustible, so the router treats this provider as free_tier class and a
// single quota failure disables it for the day.
type Endpoint struct {
	apiKey  string
	model   string
	baseUrl *url.URL
	client  *http.Client
}

type generateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
}

type generateParameters struct {
	MaxNewTokens   int32 `json:"max_new_tokens,omitempty"`
	ReturnFullText *bool `json:"return_full_text,omitempty"`
}

// The inference API returns a bare array of generations, not a chat
// completion envelope.
type generation struct {
	GeneratedText string `json:"generated_text"`
}

func NewEndpoint(baseUrl string, apiKey string, model string, timeout time.Duration) (*Endpoint, error) {
	if baseUrl == "" {
		baseUrl = defaultBaseUrl
	}
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	parsedBaseUrl, err := url.Parse(baseUrl)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %v", err)
	}

	return &Endpoint{
		apiKey:  apiKey,
		model:   model,
		baseUrl: parsedBaseUrl,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (ep *Endpoint) Complete(ctx context.Context, prompt string) (string, error) {
	returnFullText := false
	request := &generateRequest{
		Inputs: prompt,
		Parameters: generateParameters{
			MaxNewTokens:   512,
			ReturnFullText: &returnFullText,
		},
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %v", err)
	}

	endpointPath := fmt.Sprintf("%s/models/%s", ep.baseUrl.String(), ep.model)

	httpRequest, err := http.NewRequestWithContext(ctx, "POST", endpointPath, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}

	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Authorization", "Bearer "+ep.apiKey)

	httpResponse, err := ep.client.Do(httpRequest)
	if err != nil {
		return "", provider.FromErr(err)
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %v", err)
	}

	if httpResponse.StatusCode != http.StatusOK {
		return "", provider.FromStatus(httpResponse.StatusCode, string(body))
	}

	var generations []generation
	if err := json.Unmarshal(body, &generations); err != nil {
		return "", &provider.Error{
			Kind:    provider.HardFailure,
			Message: fmt.Sprintf("failed to decode response: %v", err),
		}
	}

	if len(generations) == 0 {
		return "", &provider.Error{Kind: provider.HardFailure, Message: "response has no generations"}
	}
	return generations[0].GeneratedText, nil
}

func (ep *Endpoint) Provider() string {
	return "huggingface"
}

func (ep *Endpoint) Shutdown() error {
	return nil
}
