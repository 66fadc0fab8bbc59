package openrouter

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
	defaultBaseUrl = "https://openrouter.ai/api/v1"
	defaultModel   = "meta-llama/llama-3.3-70b-instruct:free"
	defaultTimeout = 30 * time.Second
)

// Endpoint sends a single chat-completion POST to OpenRouter and unwraps the
// first choice into a plain string.
type Endpoint struct {
	apiKey  string
	model   string
	baseUrl *url.URL
	client  *http.Client
	appName string
	appUrl  string
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Id      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
}

type choice struct {
	Index        int32   `json:"index"`
	Message      message `json:"message"`
	FinishReason string  `json:"finish_reason"`
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
		appName: "textgen",
		appUrl:  "https://github.com/jobquill/textgen",
	}, nil
}

func (ep *Endpoint) Complete(ctx context.Context, prompt string) (string, error) {
	request := &chatRequest{
		Model:    ep.model,
		Messages: []message{{Role: "user", Content: prompt}},
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %v", err)
	}

	endpointPath, err := url.JoinPath(ep.baseUrl.String(), "chat", "completions")
	if err != nil {
		return "", fmt.Errorf("failed to build endpoint path: %v", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, "POST", endpointPath, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}

	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Authorization", "Bearer "+ep.apiKey)
	httpRequest.Header.Set("HTTP-Referer", ep.appUrl)
	httpRequest.Header.Set("X-Title", ep.appName)

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

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", &provider.Error{
			Kind:    provider.HardFailure,
			Message: fmt.Sprintf("failed to decode response: %v", err),
		}
	}

	if len(response.Choices) == 0 {
		return "", &provider.Error{Kind: provider.HardFailure, Message: "response has no choices"}
	}
	return response.Choices[0].Message.Content, nil
}

func (ep *Endpoint) Provider() string {
	return "openrouter"
}

func (ep *Endpoint) Shutdown() error {
	return nil
}
