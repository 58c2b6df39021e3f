package intel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const analyzePrompt = `You analyze call transcripts. Reply with a single JSON object:
{"summary": "2-3 sentence recap", "sentiment": "positive|neutral|negative",
"outcome": "short outcome label", "user_name": "caller's name or empty",
"action_items": ["follow-ups"]}. No prose outside the JSON.`

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// OpenAIAnalyzer implements Analyzer with a chat completion that returns
// structured JSON.
type OpenAIAnalyzer struct {
	client *openai.Client
	model  string
}

// NewOpenAIAnalyzer creates an analyzer for the given API key and model.
func NewOpenAIAnalyzer(apiKey, model string) (*OpenAIAnalyzer, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	return &OpenAIAnalyzer{client: openai.NewClient(apiKey), model: model}, nil
}

// Analyze runs the transcript through the model and parses its JSON
// reply, tolerating markdown fences and surrounding prose.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, transcript string) (*Intelligence, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: analyzePrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("transcript analysis: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("transcript analysis: empty response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var result Intelligence
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		// Some models wrap the object in prose; take the outermost braces.
		match := jsonObject.FindString(content)
		if match == "" {
			return nil, fmt.Errorf("transcript analysis: unparseable reply: %w", err)
		}
		if err := json.Unmarshal([]byte(match), &result); err != nil {
			return nil, fmt.Errorf("transcript analysis: unparseable reply: %w", err)
		}
	}
	return &result, nil
}
