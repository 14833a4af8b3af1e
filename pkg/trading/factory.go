package trading

import (
	"fmt"
	"sort"
)

// ExchangeClientFactory builds the venue the order manager trades against
type ExchangeClientFactory struct{}

// NewExchangeClientFactory creates a new factory
func NewExchangeClientFactory() *ExchangeClientFactory {
	return &ExchangeClientFactory{}
}

// CreateExchangeClient validates cfg and returns a client for its provider.
// Only the simulated venue ships with this build.
func (f *ExchangeClientFactory) CreateExchangeClient(cfg interface{}) (ExchangeClient, error) {
	switch c := cfg.(type) {
	case SimulationConfig:
		if c.ProviderType != "" && c.ProviderType != "simulation" {
			return nil, fmt.Errorf("simulation config with provider type %q", c.ProviderType)
		}
		if err := validateSimulation(c); err != nil {
			return nil, fmt.Errorf("invalid simulation config: %w", err)
		}
		return NewSimulationExecutor(c), nil

	case LiveConfig:
		return nil, fmt.Errorf("live exchange %q not available in this build, use simulation", c.Exchange)

	default:
		return nil, fmt.Errorf("unknown configuration type %T", cfg)
	}
}

func validateSimulation(c SimulationConfig) error {
	if c.Commission < 0 || c.Slippage < 0 {
		return fmt.Errorf("commission and slippage cannot be negative")
	}
	if c.Volatility < 0 {
		return fmt.Errorf("volatility cannot be negative")
	}
	if c.RejectionRate < 0 || c.RejectionRate > 1 {
		return fmt.Errorf("rejection rate must be in [0, 1], got %v", c.RejectionRate)
	}
	if c.Latency < 0 {
		return fmt.Errorf("latency cannot be negative")
	}

	symbols := make([]string, 0, len(c.InitialPrices))
	for s := range c.InitialPrices {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		if c.InitialPrices[s] <= 0 {
			return fmt.Errorf("initial price for %s must be positive", s)
		}
	}
	return nil
}
