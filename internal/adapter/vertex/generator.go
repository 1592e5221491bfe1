// Package vertex serves chat completions from Gemini models hosted on Vertex AI.
package vertex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"askmydoc/internal/llm"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
)

var ErrEmptyReply = errors.New("model returned no text")

type Generator struct {
	client *genai.Client
	model  string
}

func NewGenerator(ctx context.Context, projectID, region, model string, opts ...option.ClientOption) (*Generator, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("vertex generator: project and region cannot be empty")
	}
	client, err := genai.NewClient(ctx, projectID, region, opts...)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &Generator{client: client, model: model}, nil
}

func (g *Generator) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	system, turns := llm.SplitSystem(messages)
	if len(turns) == 0 {
		return "", errors.New("chat requires at least one non-system message")
	}

	model := g.client.GenerativeModel(g.model)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.2),
	}

	cs := model.StartChat()
	cs.History = history(turns[:len(turns)-1])

	slog.DebugContext(ctx, "sending chat", "provider", "vertex", "model", g.model, "turns", len(turns))
	resp, err := cs.SendMessage(ctx, genai.Text(turns[len(turns)-1].Content))
	if err != nil {
		slog.ErrorContext(ctx, "chat failed", "provider", "vertex", "model", g.model, "error", err)
		return "", err
	}
	return replyText(resp)
}

func (g *Generator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func history(turns []llm.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		r := "user"
		if m.Role == llm.RoleAssistant {
			r = "model"
		}
		out = append(out, &genai.Content{Role: r, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return out
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
