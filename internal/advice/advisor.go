// Package advice produces the short financial tip shown on the dashboard.
package advice

import (
	"context"
	"math/rand/v2"
	"sync"

	"carteira/internal/core"
)

const (
	// FallbackEmpty is shown when the advisor answers with nothing.
	FallbackEmpty = "Mantenha o foco em suas metas!"
	// FallbackError is shown when the advisor fails or times out.
	FallbackError = "Mantenha o controle para atingir seus sonhos."
)

// Advisor turns recent activity into one natural-language tip.
type Advisor interface {
	Advise(ctx context.Context, recent []core.Transaction, goals []core.Goal) (string, error)
}

var cannedTips = []string{
	"Analise seus gastos com alimentação, parecem estar acima da média.",
	"Ótimo progresso! Tente guardar 15% da sua renda este mês.",
	"Cuidado com os pequenos gastos diários, eles somam muito no final.",
	"Que tal revisar suas assinaturas mensais para cortar custos?",
	"Mantenha o foco! Você está construindo um futuro sólido.",
}

// CannedAdvisor picks one of a fixed set of tips at random.
type CannedAdvisor struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewCannedAdvisor(seed uint64) *CannedAdvisor {
	return &CannedAdvisor{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (a *CannedAdvisor) Advise(ctx context.Context, _ []core.Transaction, _ []core.Goal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return cannedTips[a.rnd.IntN(len(cannedTips))], nil
}

// CannedTips returns the tips CannedAdvisor chooses from.
func CannedTips() []string {
	return append([]string(nil), cannedTips...)
}
