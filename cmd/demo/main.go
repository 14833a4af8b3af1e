package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"orderexec/internal/config"
	"orderexec/internal/execution"
	"orderexec/internal/logging"
	"orderexec/internal/types"
	"orderexec/pkg/trading"

	"github.com/shopspring/decimal"
)

// every policy wait is compressed by this factor: one minute becomes 60ms
const timeScale = 0.001

func main() {
	fmt.Println("🚀 Starting order execution demo...")

	logCfg := config.DefaultConfig().Logging
	logCfg.Level = "warn"
	logging.InitGlobalLogger(logCfg)

	exchange := trading.NewSimulationExecutor(trading.SimulationConfig{
		ExecutionConfig: trading.ExecutionConfig{
			ProviderType: "simulation",
			Exchange:     "simulated",
			Commission:   0.0004,
			Slippage:     0.0005,
		},
		InitialPrices: map[string]float64{
			"BTCUSDT": 50000,
			"ETHUSDT": 3000,
		},
		Volatility:    0.0003,
		RejectionRate: 0.05,
		LimitOrders:   true,
		Seed:          42,
	})
	if err := exchange.Connect(context.Background()); err != nil {
		log.Fatalf("Error connecting exchange: %v", err)
	}
	defer exchange.Disconnect()

	client := trading.NewGuardedClient(exchange, trading.GuardConfig{
		CallTimeout:   time.Second,
		RatePerSecond: 200,
		Burst:         20,
	})

	defaults := execution.DefaultPolicyDefaults()
	defaults.IcebergRetryInterval = 5 * time.Second
	defaults.BracketPollInterval = 10 * time.Second

	manager, err := execution.NewManager(execution.ManagerConfig{
		Client:   client,
		Defaults: &defaults,
		Sleep:    execution.ScaledSleep(timeScale),
		Seed:     7,
		Logger:   logging.NewComponentLogger("demo"),
	})
	if err != nil {
		log.Fatalf("Error creating manager: %v", err)
	}

	fmt.Println("\n=== Submitting orders ===")
	submit("TWAP 1 BTC over 30m in 10 slices", func() (string, error) {
		return manager.CreateTimeSliced(execution.TWAPParams{
			Asset:           "BTCUSDT",
			Side:            "buy",
			TotalAmount:     decimal.NewFromInt(1),
			DurationMinutes: 30,
			SliceCount:      10,
		})
	})
	submit("VWAP 20 ETH over 24m on the intraday profile", func() (string, error) {
		return manager.CreateVolumeSliced(execution.VWAPParams{
			Asset:           "ETHUSDT",
			Side:            "sell",
			TotalAmount:     decimal.NewFromInt(20),
			DurationMinutes: 24,
		})
	})
	submit("Iceberg 5 ETH showing 0.5 at 3010", func() (string, error) {
		return manager.CreateIceberg(execution.IcebergParams{
			Asset:         "ETHUSDT",
			Side:          "buy",
			TotalAmount:   decimal.NewFromInt(5),
			VisibleAmount: decimal.NewFromFloat(0.5),
			LimitPrice:    decimal.NewFromInt(3010),
		})
	})
	bracketID := submit("Bracket long 0.2 BTC, stop 49900 / take 50100", func() (string, error) {
		return manager.CreateBracket(execution.BracketParams{
			Asset:           "BTCUSDT",
			EntrySide:       "buy",
			EntryAmount:     decimal.NewFromFloat(0.2),
			StopLossPrice:   decimal.NewFromInt(49900),
			TakeProfitPrice: decimal.NewFromInt(50100),
		})
	})

	time.Sleep(100 * time.Millisecond)
	fmt.Println("\n=== Active orders ===")
	for _, s := range manager.ListActive() {
		fmt.Printf("📊 %s %-8s %-7s %-4s %-17s %s\n", s.OrderID, s.Kind, s.Asset, s.Side, s.Status, s.Progress)
	}

	// give the bracket a bounded lifetime
	go func() {
		time.Sleep(5 * time.Second)
		if manager.Cancel(bracketID) {
			fmt.Printf("⏰ Bracket %s still open, cancellation requested\n", bracketID)
		}
	}()

	manager.Wait()

	fmt.Println("\n=== Results ===")
	for _, r := range manager.Completed() {
		printResult(r)
	}

	stats := exchange.GetStats()
	fmt.Printf("\n💰 Exchange: %d child orders (%d ok, %d failed), volume %s, fees %s\n",
		stats.TotalOrders, stats.SuccessfulOrders, stats.FailedOrders,
		stats.TotalVolume.StringFixed(4), stats.TotalFees.StringFixed(4))
	for _, symbol := range []string{"BTCUSDT", "ETHUSDT"} {
		if ticker, err := exchange.GetTicker(symbol); err == nil {
			fmt.Printf("📈 %s closed at %s\n", ticker.Symbol, ticker.Price.StringFixed(2))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := manager.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown: %v\n", err)
	}

	fmt.Println("\n✅ Demo completed")
}

func submit(label string, create func() (string, error)) string {
	id, err := create()
	if err != nil {
		fmt.Printf("❌ %s: %v\n", label, err)
		return ""
	}
	fmt.Printf("📨 %s -> %s\n", label, id)
	return id
}

func printResult(r *types.OrderResult) {
	icon := "✅"
	switch r.Status {
	case types.OrderStatusCancelled:
		icon = "🛑"
	case types.OrderStatusFailed:
		icon = "❌"
	case types.OrderStatusPartiallyFilled:
		icon = "⚠️"
	}

	fmt.Printf("%s %s %-7s %s %s: %s/%s filled (%s%%) avg %s fees %s in %d fills",
		icon, r.OrderID, r.Kind, r.Side, r.Asset,
		r.FilledAmount.StringFixed(4), r.TotalAmount.String(), r.FillPercentage.StringFixed(1),
		r.AveragePrice.StringFixed(2), r.TotalFees.StringFixed(4), len(r.Fills))
	if r.ExitReason != "" {
		fmt.Printf(" [%s]", r.ExitReason)
	}
	if r.Error != "" {
		fmt.Printf(" error: %s", r.Error)
	}
	fmt.Println()
}
