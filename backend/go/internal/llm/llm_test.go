package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"Trendline/backend/go/internal/config"
	"Trendline/backend/go/internal/models"
	"Trendline/backend/go/pkg/circuitbreaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var summarySchema = &models.ResponseSchema{
	Name:       "summary",
	Properties: map[string]string{"summary": "string"},
	Required:   []string{"summary"},
}

func TestCompleteSendsSystemUserAndImages(t *testing.T) {
	fake := &Fake{}
	out, err := Complete(context.Background(), fake, "be brief", "news text", summarySchema, "https://img/1.jpg")
	require.NoError(t, err)

	var parsed map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Contains(t, parsed["summary"], "news text")
	assert.Contains(t, parsed["summary"], "https://img/1.jpg")

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "be brief", reqs[0].SystemInstruction)
	require.Len(t, reqs[0].Content[0].Parts, 2)
	assert.Equal(t, "low", reqs[0].Content[0].Parts[1].FileData.Detail)
}

func TestCompleteEmptyResponse(t *testing.T) {
	fake := &Fake{Respond: func(context.Context, *models.GenerateContentRequest) (string, error) { return "   ", nil }}
	_, err := Complete(context.Background(), fake, "", "x", nil)
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGuardedTimeout(t *testing.T) {
	fake := &Fake{Delay: time.Second}
	g := Wrap("fake", fake, WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := Complete(context.Background(), g, "", "x", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestGuardedBreakerOpens(t *testing.T) {
	boom := errors.New("boom")
	fake := &Fake{Respond: func(context.Context, *models.GenerateContentRequest) (string, error) { return "", boom }}
	g := Wrap("fake", fake, WithBreaker(circuitbreaker.New(1, 1, time.Minute)))

	_, err := Complete(context.Background(), g, "", "x", nil)
	require.ErrorIs(t, err, boom)
	_, err = Complete(context.Background(), g, "", "x", nil)
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 1, fake.Calls())
}

func TestSupportsSchema(t *testing.T) {
	assert.True(t, SupportsSchema(Wrap("fake", &Fake{})))
	assert.True(t, SupportsSchema(&OpenAI{}))
	assert.True(t, SupportsSchema(&Ollama{}))
}

func TestSchemaJSON(t *testing.T) {
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(schemaJSON(summarySchema), &doc))
	assert.Equal(t, "object", doc["type"])
	assert.Equal(t, false, doc["additionalProperties"])
	props := doc["properties"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"type": "string"}, props["summary"])
}

func TestOpenAIRequestMapping(t *testing.T) {
	o := &OpenAI{model: "gpt-test"}
	req := o.toOpenAIRequest(&models.GenerateContentRequest{
		SystemInstruction: "sys",
		Content: []models.Content{{Role: models.SpeakerUser, Parts: []*models.Part{
			models.TextPart("hello"),
			models.ImagePart("https://img/a.png"),
		}}},
		Schema: summarySchema,
	})
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "sys", req.Messages[0].Content)
	require.Len(t, req.Messages[1].MultiContent, 2)
	assert.Equal(t, "https://img/a.png", req.Messages[1].MultiContent[1].ImageURL.URL)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, "summary", req.ResponseFormat.JSONSchema.Name)
}

func TestNewClientUnknownProvider(t *testing.T) {
	_, err := NewClient(context.Background(), config.LLMConfig{Provider: "nope"}, config.CircuitBreakerConfig{})
	require.Error(t, err)
}

func TestNewClientFake(t *testing.T) {
	m, err := NewClient(context.Background(), config.LLMConfig{Provider: "fake", Timeout: "1s"}, config.CircuitBreakerConfig{Enabled: true, FailureThreshold: 3, SuccessThreshold: 1, Timeout: "5s"})
	require.NoError(t, err)
	out, err := Complete(context.Background(), m, "", "hello", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "hello")
}
