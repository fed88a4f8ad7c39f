package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mharburg8/talk-to-your-inner-child/internal/config"
	"github.com/mharburg8/talk-to-your-inner-child/internal/logging"
)

// ---- mock ----

func TestMockGeneratorEchoesLastUserMessage(t *testing.T) {
	g := NewMockGenerator(logging.Nop{})
	out, err := g.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("first"),
		schema.AssistantMessage("reply", nil),
		schema.UserMessage("I remember the smell of my grandmother's kitchen on Sunday mornings"),
	})
	require.NoError(t, err)
	assert.Equal(t, `I hear you saying: "I remember the smell of my grandmother's kitchen o...". This is a mock response. Configure LLM_PROVIDER and API keys to use real AI responses.`, out)
	assert.Equal(t, "mock", g.Name())
}

// ---- eino chain ----

type fakeChatModel struct {
	reply string
	err   error
	seen  []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.seen = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func (f *fakeChatModel) BindTools([]*schema.ToolInfo) error { return nil }

func TestChainGeneratorInvokesModel(t *testing.T) {
	fake := &fakeChatModel{reply: "  Hi, it's good to see you.  "}
	g, err := NewChainGenerator(context.Background(), "ark", fake)
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), []*schema.Message{schema.SystemMessage("sys"), schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "Hi, it's good to see you.", out)
	require.Len(t, fake.seen, 2)
	assert.Equal(t, "ark", g.Name())
}

func TestChainGeneratorPropagatesFailure(t *testing.T) {
	g, err := NewChainGenerator(context.Background(), "ark", &fakeChatModel{err: errors.New("quota")})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}

// ---- openai ----

func TestOpenAIGenerator_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-test", body.Model)
		assert.Equal(t, 300, body.MaxTokens)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello little one"}}]}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator("sk-test", "gpt-test", WithBaseURL(srv.URL+"/v1"), WithHTTPClient(srv.Client()))
	out, err := g.Generate(context.Background(), []*schema.Message{schema.SystemMessage("sys"), schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "hello little one", out)
}

func TestOpenAIGenerator_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator("sk-test", "gpt-test", WithBaseURL(srv.URL))
	_, err := g.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
}

func TestOpenAIGenerator_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator("sk-test", "gpt-test", WithBaseURL(srv.URL))
	_, err := g.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
}

// ---- factory ----

func TestNewGeneratorFallsBackToMockWithoutCredentials(t *testing.T) {
	for _, provider := range []string{config.ProviderMock, config.ProviderOpenAI, config.ProviderArk} {
		cfg := &config.Config{Providers: config.ProvidersConfig{LLM: provider}}
		g, err := NewGenerator(context.Background(), cfg, logging.Nop{}, nil)
		require.NoError(t, err)
		assert.Equal(t, "mock", g.Name(), provider)
	}
}

func TestNewGeneratorOpenAI(t *testing.T) {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{LLM: config.ProviderOpenAI},
		OpenAI:    config.OpenAIConfig{APIKey: "sk", Model: "gpt", BaseURL: "http://localhost"},
	}
	g, err := NewGenerator(context.Background(), cfg, logging.Nop{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", g.Name())
}
