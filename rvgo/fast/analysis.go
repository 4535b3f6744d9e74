package fast

import (
	"fmt"
	"io"
)

func pct(numer, denom uint64) float64 {
	if denom == 0 {
		return 0
	}
	return float64(numer) / float64(denom) * 100.0
}

func printPct(w io.Writer, label string, numer, denom uint64) {
	_, _ = fmt.Fprintf(w, "%-22s = %d (%.2f%%)\n", label, numer, pct(numer, denom))
}

// Print writes the counters as percentages of all instructions, and of all branches for taken/not-taken.
func (a *Analysis) Print(w io.Writer) {
	bTotal := a.Branches()

	_, _ = fmt.Fprintln(w, "=== Analysis")
	_, _ = fmt.Fprintf(w, "%-22s = %d\n", "Instructions Executed", a.ICount)
	printPct(w, "R-type + I-type", a.IRCount, a.ICount)
	printPct(w, "Loads", a.LdCount, a.ICount)
	printPct(w, "Stores", a.StCount, a.ICount)
	printPct(w, "Jumps/JAL/JALR", a.JCount, a.ICount)
	printPct(w, "Conditional branches", bTotal, a.ICount)
	printPct(w, "  Branches taken", a.BTaken, bTotal)
	printPct(w, "  Branches not taken", a.BNotTaken, bTotal)
}

// Print writes the hit and miss counts as percentages of all lookups.
func (s CacheStats) Print(w io.Writer) {
	total := s.Lookups()

	_, _ = fmt.Fprintln(w, "=== Instruction cache")
	_, _ = fmt.Fprintf(w, "%-22s = %d\n", "Lookups", total)
	printPct(w, "Hits", s.Hits, total)
	printPct(w, "Misses", s.Misses, total)
}
