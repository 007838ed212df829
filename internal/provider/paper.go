package provider

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"

	"holdings-tracker/internal/models"
)

// Paper simulates prices with a bounded random walk. It never touches the
// network and is used for offline runs and demos.
type Paper struct {
	mu     sync.Mutex
	prices map[string]float64
	rng    *rand.Rand
	step   float64
}

// NewPaper creates a simulated price source. Seed prices are keyed by
// EXCHANGE:SYMBOL; unseeded symbols start from a stable per-symbol price.
func NewPaper(seed map[string]float64) *Paper {
	prices := make(map[string]float64, len(seed))
	for k, v := range seed {
		prices[k] = v
	}
	return &Paper{
		prices: prices,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		step:   0.01,
	}
}

// Name returns the source name.
func (p *Paper) Name() string { return "paper" }

// Price moves the symbol's price by up to one percent and returns it.
func (p *Paper) Price(ctx context.Context, symbol string, exchange models.Exchange) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	key := models.BasketItem{Symbol: symbol, Exchange: exchange}.Key()

	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[key]
	if !ok {
		price = basePrice(key)
	}
	price *= 1 + (p.rng.Float64()*2-1)*p.step
	price = math.Round(price*100) / 100
	if price < 0.05 {
		price = 0.05
	}
	p.prices[key] = price
	return price, nil
}

// basePrice derives a stable starting price between 100 and 3000.
func basePrice(key string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return 100 + float64(h.Sum32()%2900)
}
