package advice

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"carteira/internal/core"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// ContentGenerator is the part of genai.Models the advisor calls.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiAdvisor asks a Gemini model for a tip.
type GeminiAdvisor struct {
	models ContentGenerator
	model  string
}

// NewGeminiAdvisor creates a client from the environment (GEMINI_API_KEY or
// the Vertex AI variables).
func NewGeminiAdvisor(ctx context.Context, model string) (*GeminiAdvisor, error) {
	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return NewGeminiAdvisorWith(client.Models, model), nil
}

func NewGeminiAdvisorWith(models ContentGenerator, model string) *GeminiAdvisor {
	if model == "" {
		model = DefaultModel
	}
	return &GeminiAdvisor{models: models, model: model}
}

const systemPrompt = `Você é um consultor financeiro pessoal. Responda em português do Brasil
com UMA dica curta (no máximo duas frases), prática e encorajadora, baseada
nas transações e metas do usuário. Não use markdown nem listas.`

func (a *GeminiAdvisor) Advise(ctx context.Context, recent []core.Transaction, goals []core.Goal) (string, error) {
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: Prompt(recent, goals)}}},
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
	}

	resp, err := a.models.GenerateContent(ctx, a.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// Prompt summarises at most five transactions and all goals.
func Prompt(recent []core.Transaction, goals []core.Goal) string {
	var b strings.Builder
	b.WriteString("Transações recentes:\n")
	if len(recent) == 0 {
		b.WriteString("- nenhuma\n")
	}
	for i, t := range recent {
		if i == 5 {
			break
		}
		kind := "despesa"
		if t.Type == core.Income {
			kind = "receita"
		}
		fmt.Fprintf(&b, "- %s: %s (%s, %s) em %s\n",
			kind, t.Description, t.Category, t.Amount.Format(core.DefaultCurrency), t.Date.Format("02/01/2006"))
	}

	b.WriteString("Metas:\n")
	if len(goals) == 0 {
		b.WriteString("- nenhuma\n")
	}
	for _, g := range goals {
		fmt.Fprintf(&b, "- %s: %s de %s (%.0f%%)\n",
			g.Title, g.CurrentAmount.Format(core.DefaultCurrency), g.TargetAmount.Format(core.DefaultCurrency), g.Progress())
	}
	return b.String()
}
