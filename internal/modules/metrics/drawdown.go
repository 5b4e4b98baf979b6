package metrics

// DrawdownAnalysis describes the drawdown profile of a return series beyond
// the single worst decline.
type DrawdownAnalysis struct {
	MaxDrawdown     float64   `json:"max_drawdown"`
	AvgDrawdown     float64   `json:"avg_drawdown"`
	DrawdownCount   int       `json:"drawdown_count"`
	LongestDuration int       `json:"longest_duration"`
	Underwater      []float64 `json:"underwater"`
}

// AnalyzeDrawdowns walks the equity curve and reports every completed or
// ongoing drawdown episode. The underwater series has one entry per period:
// the current decline from the running peak, zero at new highs.
func AnalyzeDrawdowns(returns []float64, opts Options) DrawdownAnalysis {
	opts = opts.withDefaults()
	n := len(returns)
	a := DrawdownAnalysis{Underwater: make([]float64, n)}
	if n == 0 {
		return a
	}

	peak := 1.0
	equity := 1.0
	inDrawdown := false
	var episodeTrough float64
	var episodeLen int
	var troughs []float64

	endEpisode := func() {
		troughs = append(troughs, episodeTrough)
		a.DrawdownCount++
		if episodeLen > a.LongestDuration {
			a.LongestDuration = episodeLen
		}
		inDrawdown = false
		episodeLen = 0
	}

	for i, r := range returns {
		equity *= 1 + r
		if equity >= peak {
			if inDrawdown {
				endEpisode()
			}
			peak = equity
			a.Underwater[i] = 0
			continue
		}

		dd := equity/peak - 1
		if dd < opts.DrawdownFloor {
			dd = opts.DrawdownFloor
		}
		a.Underwater[i] = dd
		if !inDrawdown {
			inDrawdown = true
			episodeTrough = dd
		} else if dd < episodeTrough {
			episodeTrough = dd
		}
		episodeLen++
		if dd < a.MaxDrawdown {
			a.MaxDrawdown = dd
		}
	}
	if inDrawdown {
		endEpisode()
	}

	if len(troughs) > 0 {
		var sum float64
		for _, t := range troughs {
			sum += t
		}
		a.AvgDrawdown = sum / float64(len(troughs))
	}
	return a
}
