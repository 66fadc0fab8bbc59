package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/jobquill/textgen/provider"
)

const defaultModel = "gemini-2.0-flash"

// Endpoint calls the Gemini API through the official SDK. Two instances with
// independent API keys occupy two tier slots, so exhausting one credential's
// quota falls through to the other before any other vendor.
type Endpoint struct {
	client *genai.Client
	label  string
	model  string
}

func NewEndpoint(label string, apiKey string, model string) (*Endpoint, error) {
	if model == "" {
		model = defaultModel
	}
	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &Endpoint{client: client, label: label, model: model}, nil
}

func (ep *Endpoint) Complete(ctx context.Context, prompt string) (string, error) {
	response, err := ep.client.Models.GenerateContent(ctx, ep.model, genai.Text(prompt), nil)
	if err != nil {
		return "", classifyError(err)
	}
	text, err := responseText(response)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (ep *Endpoint) Provider() string {
	return ep.label
}

func (ep *Endpoint) Shutdown() error {
	return nil
}

// classifyError maps SDK errors to the adapter taxonomy, using the upstream
// status code when the SDK surfaces one.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return provider.FromStatus(apiErr.Code, apiErr.Message)
	}
	return provider.FromErr(err)
}

func responseText(response *genai.GenerateContentResponse) (string, error) {
	if response == nil || len(response.Candidates) == 0 {
		return "", &provider.Error{Kind: provider.HardFailure, Message: "empty response from Gemini"}
	}
	candidate := response.Candidates[0]
	if candidate.Content == nil {
		return "", &provider.Error{
			Kind:    provider.HardFailure,
			Message: fmt.Sprintf("candidate has no content: %+v", candidate),
		}
	}
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return "", &provider.Error{Kind: provider.HardFailure, Message: "candidate contains no text parts"}
	}
	return text.String(), nil
}
