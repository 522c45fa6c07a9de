package breath

// CountApneas counts inter-breath gaps longer than gapSeconds. Each
// qualifying gap is one apnea event regardless of its duration; this is a
// simplified clinical heuristic, not a diagnostic-grade apnea/hypopnea
// index. Zero or one peak yields zero events.
func CountApneas(peakTimes []float64, gapSeconds float64) int {
	count := 0
	for i := 1; i < len(peakTimes); i++ {
		if peakTimes[i]-peakTimes[i-1] > gapSeconds {
			count++
		}
	}
	return count
}
