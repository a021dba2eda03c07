package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/paperproof/internal/model"
	"github.com/ppiankov/paperproof/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu    sync.Mutex
	reqs  []CompletionRequest
	reply string
	err   error
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) IsAvailable(ctx context.Context) bool { return true }
func (f *fakeProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &CompletionResponse{Content: f.reply, Model: req.Model}, nil
}

func TestClient_GenerateUsesSystemPromptAndDefaults(t *testing.T) {
	p := &fakeProvider{reply: "ok"}
	c := NewClient(p, "default-model", nil, nil)

	out, err := c.Generate(context.Background(), "hello", WithSystem("Be terse."), WithJSON())
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	require.Len(t, p.reqs, 1)
	req := p.reqs[0]
	assert.Equal(t, "default-model", req.Model)
	assert.Equal(t, "You are a helpful assistant.\nBe terse.", req.System)
	assert.True(t, req.JSON)
	assert.Equal(t, []Message{{Role: RoleUser, Content: "hello"}}, req.Messages)
}

func TestClient_TurnExtendsConversationWithoutMutatingInput(t *testing.T) {
	p := &fakeProvider{reply: "second reply"}
	c := NewClient(p, "m", nil, nil)

	base := NewConversation(
		Message{Role: RoleUser, Content: "first"},
		Message{Role: RoleAssistant, Content: "first reply"},
	)
	reply, next, err := c.Turn(context.Background(), base, "second", WithModel("override"))
	require.NoError(t, err)

	assert.Equal(t, "second reply", reply)
	assert.Equal(t, 2, base.Len())
	assert.Equal(t, 4, next.Len())
	assert.Equal(t, "override", p.reqs[0].Model)
	assert.Len(t, p.reqs[0].Messages, 3)
}

func TestClient_FailedTurnKeepsConversation(t *testing.T) {
	p := &fakeProvider{err: errors.New("boom")}
	c := NewClient(p, "m", nil, nil)

	base := NewConversation(Message{Role: RoleUser, Content: "a"})
	_, next, err := c.Turn(context.Background(), base, "b")
	require.Error(t, err)
	assert.Equal(t, base.Len(), next.Len())
}

func TestClient_EmptyResponse(t *testing.T) {
	c := NewClient(&fakeProvider{reply: "   "}, "m", nil, nil)
	_, err := c.Generate(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestApplyOptions_Temperature(t *testing.T) {
	o := ApplyOptions(WithTemperature(0), WithMaxTokens(100))
	require.NotNil(t, o.Temperature)
	assert.Equal(t, float32(0), *o.Temperature)
	assert.Equal(t, 100, o.MaxTokens)
	assert.Equal(t, BaseSystemPrompt, o.SystemPrompt())
}

func TestClient_ModelLimitsThrottleOnlyThatModel(t *testing.T) {
	limiter := worker.NewLimiter(1000, 100)
	ApplyModelLimits(limiter, "fake", []model.ModelLimit{{Model: "slow", RequestsPerSecond: 0.01, Burst: 1}})
	c := NewClient(&fakeProvider{reply: "ok"}, "fast", limiter, nil)

	_, err := c.Generate(context.Background(), "x", WithModel("slow"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Generate(ctx, "x", WithModel("slow"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")

	for i := 0; i < 5; i++ {
		_, err = c.Generate(context.Background(), "x")
		require.NoError(t, err)
	}
}

func TestLimiterKey(t *testing.T) {
	assert.Equal(t, "openai:gpt-4o-mini", LimiterKey("openai", "gpt-4o-mini"))
}
