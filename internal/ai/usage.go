package ai

import "sync"

// usageMeter accumulates token usage and cost across batch calls. Providers
// are shared by all orchestrator workers, so every access is locked.
type usageMeter struct {
	mu      sync.Mutex
	usage   Usage
	pricing RequestPricing
}

func (m *usageMeter) add(inputTokens, outputTokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage.InputTokens += inputTokens
	m.usage.OutputTokens += outputTokens
	m.usage.TotalCost += float64(inputTokens) / 1_000_000 * m.pricing.Input
	m.usage.TotalCost += float64(outputTokens) / 1_000_000 * m.pricing.Output
}

// snapshot returns a copy so callers never hold a reference to guarded state.
func (m *usageMeter) snapshot() *Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.usage
	return &u
}

func (m *usageMeter) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = Usage{}
}
