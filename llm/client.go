// Client - single-shot request/response adapter over a Provider.

package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyResponse reports that the provider returned a response with no
// choices or empty content. This is distinct from a transport error: the
// request succeeded but the model said nothing.
var ErrEmptyResponse = errors.New("llm: empty response from provider")

// Client wraps a Provider with the single-shot contract used across the
// pipeline: (system directive, user directive) in, text out. No retries at
// this layer; retrying whole runs is the caller's concern.
type Client struct {
	provider Provider
}

// NewClient creates a client from a provider.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider}
}

// Complete sends one system+user exchange and returns the response text.
// An empty response is a failure, never a success with empty text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, system, user, nil)
}

// CompleteJSON is Complete with a JSON-object format hint for providers that
// support constrained output.
func (c *Client) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, system, user, &ResponseFormat{Type: ResponseFormatJSONObject})
}

func (c *Client) complete(ctx context.Context, system, user string, format *ResponseFormat) (string, error) {
	messages := []ChatMessage{
		SystemMessage(system),
		UserMessage(user),
	}

	var resp Response
	var err error
	if format != nil {
		resp, err = c.provider.ChatWithFormat(ctx, messages, format)
	} else {
		resp, err = c.provider.Chat(ctx, messages)
	}
	if err != nil {
		return "", fmt.Errorf("llm: %s completion failed: %w", c.provider.Name(), err)
	}
	if resp.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Content, nil
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}
