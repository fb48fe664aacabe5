package llm

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/kairo-crm/intake/internal/resilience"
	"github.com/kairo-crm/intake/pkg/anthropic"
)

// Anthropic adapts the Messages API to Completer.
type Anthropic struct {
	client      anthropic.Client
	model       string
	temperature float64
}

// NewAnthropic returns a Completer backed by client.
func NewAnthropic(client anthropic.Client, model string, temperature float64) *Anthropic {
	return &Anthropic{client: client, model: model, temperature: temperature}
}

// Complete implements Completer.
func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	temp := a.temperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   maxTokens,
		System:      req.System,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return "", resilience.FromStatus(err, apiErr.StatusCode)
		}
		return "", err
	}
	resp.Usage.Log(a.model, "complete")
	return resp.Text(), nil
}
