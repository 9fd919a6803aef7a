package normalization

import "fmt"

// LamportsPerSol is the number of lamports in one SOL.
const LamportsPerSol = 1_000_000_000

// LamportsToSol converts lamports to SOL for display.
// Float precision only; never use the result to build on-chain amounts.
func LamportsToSol(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSol
}

// FormatSol renders a SOL amount with two decimals and the ◎ sign.
func FormatSol(sol float64) string {
	return fmt.Sprintf("◎%.2f", sol)
}
