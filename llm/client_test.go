package llm

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	content    string
	err        error
	lastFormat *ResponseFormat
}

func (s *stubProvider) Name() string  { return "stub" }
func (s *stubProvider) Model() string { return "stub-model" }

func (s *stubProvider) Chat(_ context.Context, _ []ChatMessage) (Response, error) {
	if s.err != nil {
		return Response{}, s.err
	}
	return Response{Content: s.content}, nil
}

func (s *stubProvider) ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (Response, error) {
	s.lastFormat = format
	return s.Chat(ctx, messages)
}

func TestCompleteReturnsContent(t *testing.T) {
	client := NewClient(&stubProvider{content: "hello"})
	got, err := client.Complete(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "hello" {
		t.Errorf("expected hello, got %q", got)
	}
}

func TestCompleteEmptyResponseIsFailure(t *testing.T) {
	client := NewClient(&stubProvider{content: ""})
	_, err := client.Complete(context.Background(), "system", "user")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestCompleteWrapsProviderError(t *testing.T) {
	cause := errors.New("network down")
	client := NewClient(&stubProvider{err: cause})
	_, err := client.Complete(context.Background(), "system", "user")
	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
}

func TestCompleteJSONRequestsJSONFormat(t *testing.T) {
	stub := &stubProvider{content: `{"ok": true}`}
	client := NewClient(stub)
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if stub.lastFormat == nil || stub.lastFormat.Type != ResponseFormatJSONObject {
		t.Errorf("expected JSON response format, got %+v", stub.lastFormat)
	}
}

func TestParseProviderType(t *testing.T) {
	tests := map[string]ProviderType{
		"openai":    ProviderOpenAI,
		"OpenAI":    ProviderOpenAI,
		"claude":    ProviderAnthropic,
		"anthropic": ProviderAnthropic,
		"deepseek":  ProviderDeepSeek,
		"gemini":    ProviderGemini,
		"google":    ProviderGemini,
	}
	for name, want := range tests {
		got, err := ParseProviderType(name)
		if err != nil {
			t.Errorf("ParseProviderType(%q): %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("ParseProviderType(%q): expected %v, got %v", name, want, got)
		}
	}
	if _, err := ParseProviderType("mistral"); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestProviderDefaults(t *testing.T) {
	for _, p := range []ProviderType{ProviderOpenAI, ProviderAnthropic, ProviderDeepSeek, ProviderGemini} {
		if p.DefaultModel() == "" {
			t.Errorf("%s: missing default model", p)
		}
		if p.EnvVar() == "" {
			t.Errorf("%s: missing env var", p)
		}
	}
}

func TestBuilderFromEnvRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := ProviderOpenAI.FromEnv(); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestBuilderConstructsProvider(t *testing.T) {
	p, err := ProviderOpenAI.Model(ModelOpenAIGPT4oMini).APIKey("test-key")
	if err != nil {
		t.Fatalf("APIKey: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("expected openai, got %q", p.Name())
	}
	if p.Model() != ModelOpenAIGPT4oMini {
		t.Errorf("unexpected model: %q", p.Model())
	}
}
