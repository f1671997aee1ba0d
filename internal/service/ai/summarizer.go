package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/simplifychat/backend/internal/model/chat"
)

var (
	// ErrUpstream wraps failures of the hosted model.
	ErrUpstream = errors.New("ai: upstream model error")
	// ErrEmptyOutput is returned when the model answers with no text.
	ErrEmptyOutput = errors.New("ai: empty model output")
)

// Summarizer turns a conversation transcript into a structured summary through an eino chain.
type Summarizer struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewSummarizer compiles the summary chain around chatModel.
func NewSummarizer(ctx context.Context, chatModel model.BaseChatModel) (*Summarizer, error) {
	if chatModel == nil {
		return nil, errors.New("ai: chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(summarySystemPrompt),
		schema.UserMessage(summaryUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile summary chain: %w", err)
	}

	return &Summarizer{chain: runnable}, nil
}

// Summarize runs the chain once and parses the answer.
func (s *Summarizer) Summarize(ctx context.Context, participants []string, messages []chat.Message) (*chat.Summary, error) {
	resp, err := s.chain.Invoke(ctx, BuildPromptInput(participants, messages))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, ErrEmptyOutput)
	}

	summary, err := ParseSummary(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	log.Printf("[ai] summarized %d messages, key_points=%d action_items=%d", len(messages), len(summary.KeyPoints), len(summary.ActionItems))
	return summary, nil
}

// Stream runs the chain in streaming mode. The caller must close the returned reader.
func (s *Summarizer) Stream(ctx context.Context, participants []string, messages []chat.Message) (*schema.StreamReader[*schema.Message], error) {
	stream, err := s.chain.Stream(ctx, BuildPromptInput(participants, messages))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return stream, nil
}

// BuildPromptInput fills the template variables of the summary prompt.
func BuildPromptInput(participants []string, messages []chat.Message) map[string]any {
	names := "unknown participants"
	if len(participants) > 0 {
		names = strings.Join(participants, ", ")
	}
	return map[string]any{
		"participants": names,
		"transcript":   FormatTranscript(messages),
	}
}

// FormatTranscript renders messages as "sender: content" lines.
func FormatTranscript(messages []chat.Message) string {
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(msg.Sender)
		b.WriteString(": ")
		b.WriteString(msg.Content)
	}
	return b.String()
}

// Braces are reserved by the FString template, so the JSON shape is described in words.
const summarySystemPrompt = "You analyze chat conversations. Reply with a single JSON object and nothing else. " +
	"The object has three fields: summary (a concise summary of at most three sentences), " +
	"key_points (an array of strings, the key discussion points) and " +
	"action_items (an array of strings, concrete follow-up actions; empty if there are none)."

const summaryUserPrompt = "Analyze this conversation between {participants}:\n\n{transcript}\n\n" +
	"Provide:\n1. A concise 3-sentence summary\n2. Key discussion points\n3. Action items"
