package main

import (
	"context"
	"fmt"
	"sort" // Import the sort package

	"github.com/kegliz/ketqsim/internal/config"
	"github.com/kegliz/ketqsim/internal/logger"
	"github.com/kegliz/ketqsim/qc/simulator"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("config: %v\n", err)
		return
	}
	log := logger.NewLogger(logger.LoggerOptions{Debug: cfg.GetBool("debug")})
	log.Info().Msg("ketqsim cli starting")

	shots := cfg.Shots()

	fmt.Println("--- Bell State Simulation ---")
	simulateBellState(cfg, shots)
	fmt.Println("\n--- 2-Qubit Grover Simulation (|11>) ---")
	simulateGrover2Qubit(cfg, shots)
	fmt.Println("\n--- 3-Qubit Grover Simulation (|111>) ---")
	simulateGrover3Qubit(cfg, shots)
}

// simulateBellState prepares the |Φ⁺⟩ Bell state and prints its sampled
// statistics (about 50/50 between |00> and |11>), drawn from the Engine's
// amplitude distribution directly.
func simulateBellState(cfg *config.Config, shots int) {
	ctx := context.Background()
	e, err := simulator.NewEngine(simulator.EngineOptions{TotalNumQubits: 2, Config: cfg})
	if err != nil {
		fmt.Printf("Error building Bell state engine: %v\n", err)
		return
	}
	if err := e.H(ctx, 0); err != nil {
		fmt.Printf("Error applying H: %v\n", err)
		return
	}
	if err := e.CNOT(ctx, 0, 1); err != nil {
		fmt.Printf("Error applying CNOT: %v\n", err)
		return
	}

	hist, err := histogram(e, shots, 2)
	if err != nil {
		fmt.Printf("Error sampling Bell state: %v\n", err)
		return
	}
	pretty(hist, shots)
}

// simulateGrover2Qubit demonstrates one Grover iteration on a 2-qubit search
// space, amplifying the |11⟩ state.
func simulateGrover2Qubit(cfg *config.Config, shots int) {
	ctx := context.Background()
	e, err := simulator.NewEngine(simulator.EngineOptions{TotalNumQubits: 2, Config: cfg})
	if err != nil {
		fmt.Printf("Error building 2-qubit Grover engine: %v\n", err)
		return
	}

	// — initial superposition —
	must(e.H(ctx, 0))
	must(e.H(ctx, 1))

	// — oracle marks |11⟩ by phase flip (controlled‑Z) —
	must(e.CZ(ctx, 0, 1))

	// — diffusion operator —
	must(e.H(ctx, 0))
	must(e.H(ctx, 1))
	must(e.X(ctx, 0))
	must(e.X(ctx, 1))
	must(e.CZ(ctx, 0, 1))
	must(e.X(ctx, 0))
	must(e.X(ctx, 1))
	must(e.H(ctx, 0))
	must(e.H(ctx, 1))

	hist, err := histogram(e, shots, 2)
	if err != nil {
		fmt.Printf("Error sampling 2-qubit Grover: %v\n", err)
		return
	}
	pretty(hist, shots)
}

// simulateGrover3Qubit demonstrates one Grover iteration on a 3-qubit search
// space, amplifying the |111⟩ state.
func simulateGrover3Qubit(cfg *config.Config, shots int) {
	ctx := context.Background()
	e, err := simulator.NewEngine(simulator.EngineOptions{TotalNumQubits: 3, Config: cfg})
	if err != nil {
		fmt.Printf("Error building 3-qubit Grover engine: %v\n", err)
		return
	}

	// — initial superposition —
	must(e.H(ctx, 0))
	must(e.H(ctx, 1))
	must(e.H(ctx, 2))

	// — oracle marks |111⟩ by phase flip (CCZ via H‑Toffoli‑H) —
	must(e.H(ctx, 2))
	must(e.Toffoli(ctx, 0, 1, 2))
	must(e.H(ctx, 2))

	// — diffusion operator (3 qubits) —
	must(e.H(ctx, 0))
	must(e.H(ctx, 1))
	must(e.H(ctx, 2))
	must(e.X(ctx, 0))
	must(e.X(ctx, 1))
	must(e.X(ctx, 2))
	must(e.H(ctx, 2))
	must(e.Toffoli(ctx, 0, 1, 2))
	must(e.H(ctx, 2))
	must(e.X(ctx, 0))
	must(e.X(ctx, 1))
	must(e.X(ctx, 2))
	must(e.H(ctx, 0))
	must(e.H(ctx, 1))
	must(e.H(ctx, 2))

	hist, err := histogram(e, shots, 3)
	if err != nil {
		fmt.Printf("Error sampling 3-qubit Grover: %v\n", err)
		return
	}
	pretty(hist, shots)
}

// histogram draws shots independent basis samples from e's amplitude
// distribution and bins them into a bitstring histogram, msb-first.
func histogram(e *simulator.Engine, shots int, numQubits int) (map[string]int, error) {
	events, err := e.GenerateEvents(shots)
	if err != nil {
		return nil, err
	}
	hist := make(map[string]int)
	for _, ev := range events {
		hist[bitstring(ev, numQubits)]++
	}
	return hist, nil
}

func bitstring(v uint64, n int) string {
	bs := make([]byte, n)
	for i := 0; i < n; i++ {
		bit := (v >> uint(n-1-i)) & 1
		bs[i] = '0' + byte(bit)
	}
	return string(bs)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// pretty prints the histogram results in a readable, sorted format
func pretty(hist map[string]int, shots int) {
	// Extract keys for sorting
	keys := make([]string, 0, len(hist))
	for k := range hist {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Sort keys alphabetically

	// Print sorted results
	for _, state := range keys {
		count := hist[state]
		probability := float64(count) / float64(shots)
		fmt.Printf("State |%s>: %d counts (%.2f%%)\n", state, count, probability*100)
	}
}
