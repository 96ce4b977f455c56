package session

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAISummarizer summarizes call transcripts with a small chat model.
type OpenAISummarizer struct {
	client openai.Client
	model  openai.ChatModel
}

// NewOpenAISummarizer creates a summarizer. An empty apiKey falls back
// to the OPENAI_API_KEY environment variable.
func NewOpenAISummarizer(apiKey string) *OpenAISummarizer {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &OpenAISummarizer{
		client: openai.NewClient(opts...),
		model:  openai.ChatModelGPT4oMini,
	}
}

// Summarize returns a 1-2 sentence summary of the transcript.
func (s *OpenAISummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	completion, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("Summarize this phone call transcript in 1-2 sentences. Include key topics discussed and outcome if any."),
			openai.UserMessage(fmt.Sprintf("Transcript:\n%s\n\nSummary:", transcript)),
		},
		Model:       s.model,
		MaxTokens:   openai.Int(150),
		Temperature: openai.Float(0.3),
	})
	if err != nil {
		return "", fmt.Errorf("summarize transcript: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("summary response contained no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
