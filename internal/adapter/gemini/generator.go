package gemini

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"askmydoc/internal/llm"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultGenerativeModel = "gemini-2.0-flash"

var ErrEmptyReply = errors.New("model returned no text")

type Generator struct {
	client *genai.Client
	model  string
}

func NewGenerator(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Generator, error) {
	if model == "" {
		model = DefaultGenerativeModel
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Generator{client: client, model: model}, nil
}

// Chat sends the conversation and returns the reply text. System turns become the
// model's system instruction; the final turn is the message sent.
func (g *Generator) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	system, turns := llm.SplitSystem(messages)
	if len(turns) == 0 {
		return "", errors.New("chat requires at least one non-system message")
	}

	model := g.client.GenerativeModel(g.model)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := model.StartChat()
	for _, m := range turns[:len(turns)-1] {
		cs.History = append(cs.History, &genai.Content{
			Role:  role(m.Role),
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	slog.DebugContext(ctx, "sending chat", "model", g.model, "turns", len(turns))
	resp, err := cs.SendMessage(ctx, genai.Text(turns[len(turns)-1].Content))
	if err != nil {
		slog.ErrorContext(ctx, "chat failed", "model", g.model, "error", err)
		return "", err
	}
	return replyText(resp)
}

func (g *Generator) Close() error {
	return g.client.Close()
}

func role(r string) string {
	if r == llm.RoleAssistant {
		return "model"
	}
	return "user"
}

func replyText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyReply
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyReply
	}
	return sb.String(), nil
}
