package replicate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/jobquill/textgen/provider"
)

const (
	defaultBaseUrl      = "https://api.replicate.com/v1"
	defaultModel        = "meta/meta-llama-3-8b-instruct"
	defaultTimeout      = 15 * time.Second
	defaultPollInterval = 1 * time.Second

	// Asks Replicate to hold the create request open for a few seconds; a
	// fast prediction then completes without entering the poll loop at all.
	syncWaitSeconds = 5
)

// Endpoint runs prompts as asynchronous Replicate predictions: one create
// request with a synchronous wait hint, then a fixed-interval poll loop. The
// create request and every poll share a single overall deadline.
type Endpoint struct {
	apiToken     string
	model        string
	baseUrl      *url.URL
	client       *http.Client
	timeout      time.Duration
	pollInterval time.Duration
}

type createRequest struct {
	Input predictionInput `json:"input"`
}

type predictionInput struct {
	Prompt string `json:"prompt"`
}

type prediction struct {
	Id     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	Urls   predictionUrls  `json:"urls"`
}

type predictionUrls struct {
	Get string `json:"get"`
}

func NewEndpoint(baseUrl string, apiToken string, model string, timeout time.Duration, pollInterval time.Duration) (*Endpoint, error) {
	if baseUrl == "" {
		baseUrl = defaultBaseUrl
	}
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	parsedBaseUrl, err := url.Parse(baseUrl)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %v", err)
	}

	return &Endpoint{
		apiToken:     apiToken,
		model:        model,
		baseUrl:      parsedBaseUrl,
		client:       &http.Client{},
		timeout:      timeout,
		pollInterval: pollInterval,
	}, nil
}

func (ep *Endpoint) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ep.timeout)
	defer cancel()

	current, err := ep.createPrediction(ctx, prompt)
	if err != nil {
		return "", err
	}

	for {
		switch current.Status {
		case "succeeded":
			return joinOutput(current.Output)
		case "failed", "canceled":
			return "", &provider.Error{
				Kind:    provider.HardFailure,
				Message: fmt.Sprintf("prediction %s: %v", current.Status, current.Error),
			}
		}

		select {
		case <-ctx.Done():
			return "", &provider.Error{
				Kind:    provider.Timeout,
				Message: fmt.Sprintf("prediction %s did not finish within %s", current.Id, ep.timeout),
			}
		case <-time.After(ep.pollInterval):
		}

		next, err := ep.getPrediction(ctx, current)
		if err != nil {
			if ctx.Err() != nil {
				return "", &provider.Error{
					Kind:    provider.Timeout,
					Message: fmt.Sprintf("prediction %s did not finish within %s", current.Id, ep.timeout),
				}
			}
			return "", err
		}
		current = next
	}
}

func (ep *Endpoint) createPrediction(ctx context.Context, prompt string) (*prediction, error) {
	request := &createRequest{Input: predictionInput{Prompt: prompt}}
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}

	endpointPath, err := url.JoinPath(ep.baseUrl.String(), "models", ep.model, "predictions")
	if err != nil {
		return nil, fmt.Errorf("failed to build endpoint path: %v", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, "POST", endpointPath, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Authorization", "Bearer "+ep.apiToken)
	httpRequest.Header.Set("Prefer", fmt.Sprintf("wait=%d", syncWaitSeconds))

	return ep.doPredictionRequest(httpRequest)
}

func (ep *Endpoint) getPrediction(ctx context.Context, current *prediction) (*prediction, error) {
	pollUrl := current.Urls.Get
	if pollUrl == "" {
		joined, err := url.JoinPath(ep.baseUrl.String(), "predictions", current.Id)
		if err != nil {
			return nil, fmt.Errorf("failed to build poll path: %v", err)
		}
		pollUrl = joined
	}

	httpRequest, err := http.NewRequestWithContext(ctx, "GET", pollUrl, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	httpRequest.Header.Set("Authorization", "Bearer "+ep.apiToken)

	return ep.doPredictionRequest(httpRequest)
}

func (ep *Endpoint) doPredictionRequest(httpRequest *http.Request) (*prediction, error) {
	httpResponse, err := ep.client.Do(httpRequest)
	if err != nil {
		return nil, provider.FromErr(err)
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}

	if httpResponse.StatusCode != http.StatusOK && httpResponse.StatusCode != http.StatusCreated {
		return nil, provider.FromStatus(httpResponse.StatusCode, string(body))
	}

	var result prediction
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &provider.Error{
			Kind:    provider.HardFailure,
			Message: fmt.Sprintf("failed to decode prediction: %v", err),
		}
	}
	return &result, nil
}

// joinOutput concatenates the prediction output into one string. Language
// models on Replicate stream their completion as an array of string tokens;
// some models return a single string instead.
func joinOutput(output json.RawMessage) (string, error) {
	if len(output) == 0 {
		return "", &provider.Error{Kind: provider.HardFailure, Message: "prediction succeeded without output"}
	}

	var tokens []string
	if err := json.Unmarshal(output, &tokens); err == nil {
		return strings.Join(tokens, ""), nil
	}

	var text string
	if err := json.Unmarshal(output, &text); err == nil {
		return text, nil
	}

	return "", &provider.Error{
		Kind:    provider.HardFailure,
		Message: fmt.Sprintf("unexpected output shape: %s", string(output)),
	}
}

func (ep *Endpoint) Provider() string {
	return "replicate"
}

func (ep *Endpoint) Shutdown() error {
	return nil
}
