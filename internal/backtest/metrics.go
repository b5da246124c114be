package backtest

import "math"

// Metrics is the full performance summary computed from a completed
// run's trades and equity curve, grounded on
// original_source/agent/backtest/metrics.py's formula set in full.
type Metrics struct {
	TotalTrades        int
	Wins                int
	Losses              int
	WinRate             float64
	TotalPnL            float64
	MaxDrawdown         float64
	MaxDrawdownPct      float64
	SharpeRatio         float64
	SortinoRatio        float64
	ProfitFactor        float64
	RecoveryFactor      float64
	AvgRR               float64
	AvgWin              float64
	AvgLoss             float64
	LargestWin          float64
	LargestLoss         float64
	ConsecutiveWins     int
	ConsecutiveLosses   int
	AvgDurationBars     float64
	CAGR                float64
	CalmarRatio         float64
	UlcerIndex          float64
	Expectancy          float64
	Skewness            float64
	Kurtosis            float64
	BestTradeStreakPnL  float64
	WorstTradeStreakPnL float64
	MonthlyReturns      map[string]float64
	WinRateLong         float64
	WinRateShort        float64
	AvgBarsWinners      float64
	AvgBarsLosers       float64
}

// ComputeDrawdownCurve returns, for every point in equityCurve, the
// signed distance below the running peak (0 or negative).
func ComputeDrawdownCurve(equityCurve []float64) []float64 {
	if len(equityCurve) == 0 {
		return nil
	}
	dd := make([]float64, len(equityCurve))
	peak := equityCurve[0]
	for i, v := range equityCurve {
		if v > peak {
			peak = v
		}
		dd[i] = v - peak
	}
	return dd
}

func sortino(returns []float64, mean float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var downsideSq float64
	for _, r := range returns {
		if r < 0 {
			downsideSq += r * r
		}
	}
	downDev := math.Sqrt(downsideSq / float64(len(returns)))
	if downDev <= 0 {
		if mean > 0 {
			return 999.0
		}
		return 0
	}
	return mean / downDev * math.Sqrt(252)
}

func ulcerIndex(equityCurve []float64) float64 {
	if len(equityCurve) < 2 {
		return 0
	}
	peak := equityCurve[0]
	var sumSq float64
	for _, v := range equityCurve {
		if v > peak {
			peak = v
		}
		ddPct := 0.0
		if peak > 0 {
			ddPct = (v - peak) / peak * 100
		}
		sumSq += ddPct * ddPct
	}
	return math.Sqrt(sumSq / float64(len(equityCurve)))
}

func skewness(values []float64) float64 {
	n := len(values)
	if n < 3 {
		return 0
	}
	mean := meanOf(values)
	var m2, m3 float64
	for _, v := range values {
		d := v - mean
		m2 += d * d
		m3 += d * d * d
	}
	m2 /= float64(n)
	m3 /= float64(n)
	if m2 <= 0 {
		return 0
	}
	return m3 / math.Pow(m2, 1.5)
}

func kurtosis(values []float64) float64 {
	n := len(values)
	if n < 4 {
		return 0
	}
	mean := meanOf(values)
	var m2, m4 float64
	for _, v := range values {
		d := v - mean
		m2 += d * d
		m4 += d * d * d * d
	}
	m2 /= float64(n)
	m4 /= float64(n)
	if m2 <= 0 {
		return 0
	}
	return m4/(m2*m2) - 3.0
}

func streakPnL(trades []Trade) (best, worst float64) {
	if len(trades) == 0 {
		return 0, 0
	}
	current := 0.0
	var prevWinning *bool
	for _, t := range trades {
		winning := t.PnL > 0
		if prevWinning == nil || winning == *prevWinning {
			current += t.PnL
		} else {
			current = t.PnL
		}
		if current > best {
			best = current
		}
		if current < worst {
			worst = current
		}
		w := winning
		prevWinning = &w
	}
	return best, worst
}

func monthlyReturns(trades []Trade, startingBalance float64) map[string]float64 {
	monthly := make(map[string]float64)
	for _, t := range trades {
		if t.CloseTime.IsZero() {
			continue
		}
		key := t.CloseTime.Format("2006-01")
		monthly[key] += t.PnL
	}
	if startingBalance > 0 {
		for k, v := range monthly {
			monthly[k] = round2(v / startingBalance * 100)
		}
	}
	return monthly
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// ComputeMetrics mirrors metrics.py's compute_metrics in full,
// including CAGR's trade-timestamp-derived annualization and Calmar's
// dependence on it.
func ComputeMetrics(trades []Trade, equityCurve []float64, startingBalance float64) Metrics {
	if len(trades) == 0 {
		return Metrics{}
	}

	var wins, losses []Trade
	var totalPnL, grossProfit, grossLoss float64
	for _, t := range trades {
		totalPnL += t.PnL
		if t.PnL > 0 {
			wins = append(wins, t)
			grossProfit += t.PnL
		} else if t.PnL < 0 {
			losses = append(losses, t)
			grossLoss += -t.PnL
		}
	}

	winRate := float64(len(wins)) / float64(len(trades)) * 100

	profitFactor := 0.0
	switch {
	case grossLoss > 0:
		profitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		profitFactor = 999.0
	}

	ddCurve := ComputeDrawdownCurve(equityCurve)
	maxDrawdown := 0.0
	for _, d := range ddCurve {
		if -d > maxDrawdown {
			maxDrawdown = -d
		}
	}
	peakEquity := startingBalance
	for _, v := range equityCurve {
		if v > peakEquity {
			peakEquity = v
		}
	}
	maxDrawdownPct := 0.0
	if peakEquity > 0 {
		maxDrawdownPct = maxDrawdown / peakEquity * 100
	}

	recoveryFactor := 0.0
	if maxDrawdown > 0 {
		recoveryFactor = totalPnL / maxDrawdown
	}

	returns := make([]float64, len(trades))
	for i, t := range trades {
		returns[i] = t.PnL
	}
	meanRet := meanOf(returns)

	sharpe := 0.0
	if len(returns) > 1 {
		var sumSq float64
		for _, r := range returns {
			d := r - meanRet
			sumSq += d * d
		}
		stdRet := math.Sqrt(sumSq / float64(len(returns)-1))
		if stdRet > 0 {
			sharpe = meanRet / stdRet * math.Sqrt(252)
		}
	}

	sortinoRatio := sortino(returns, meanRet)

	var rrVals []float64
	for _, t := range trades {
		if t.RRAchieved != nil {
			rrVals = append(rrVals, *t.RRAchieved)
		}
	}
	avgRR := meanOf(rrVals)

	avgWin, avgLoss := 0.0, 0.0
	if len(wins) > 0 {
		avgWin = grossProfit / float64(len(wins))
	}
	if len(losses) > 0 {
		avgLoss = -grossLoss / float64(len(losses))
	}

	largestWin, largestLoss := 0.0, 0.0
	for _, t := range wins {
		if t.PnL > largestWin {
			largestWin = t.PnL
		}
	}
	for _, t := range losses {
		if t.PnL < largestLoss {
			largestLoss = t.PnL
		}
	}

	maxConWins, maxConLosses, curWins, curLosses := 0, 0, 0, 0
	for _, t := range trades {
		switch {
		case t.PnL > 0:
			curWins++
			curLosses = 0
			if curWins > maxConWins {
				maxConWins = curWins
			}
		case t.PnL < 0:
			curLosses++
			curWins = 0
			if curLosses > maxConLosses {
				maxConLosses = curLosses
			}
		default:
			curWins, curLosses = 0, 0
		}
	}

	durations := make([]float64, len(trades))
	for i, t := range trades {
		durations[i] = float64(t.CloseIndex - t.OpenIndex)
	}
	avgDuration := meanOf(durations)

	endingBalance := startingBalance + totalPnL
	cagr := 0.0
	first, last := trades[0], trades[len(trades)-1]
	if !first.OpenTime.IsZero() && !last.CloseTime.IsZero() {
		years := last.CloseTime.Sub(first.OpenTime).Hours() / (365.25 * 24)
		if years > 0 && endingBalance > 0 && startingBalance > 0 {
			cagr = (math.Pow(endingBalance/startingBalance, 1.0/years) - 1.0) * 100
		}
	}

	calmar := 0.0
	if maxDrawdownPct > 0 {
		calmar = math.Abs(cagr) / maxDrawdownPct
	}

	expectancy := totalPnL / float64(len(trades))
	skew := skewness(returns)
	kurt := kurtosis(returns)
	bestStreak, worstStreak := streakPnL(trades)
	monthly := monthlyReturns(trades, startingBalance)

	var longs, shorts []Trade
	for _, t := range trades {
		if t.Direction == "BUY" {
			longs = append(longs, t)
		} else {
			shorts = append(shorts, t)
		}
	}
	winRateLong := winRateOf(longs)
	winRateShort := winRateOf(shorts)

	var winnerDur, loserDur []float64
	for _, t := range wins {
		winnerDur = append(winnerDur, float64(t.CloseIndex-t.OpenIndex))
	}
	for _, t := range losses {
		loserDur = append(loserDur, float64(t.CloseIndex-t.OpenIndex))
	}

	return Metrics{
		TotalTrades:         len(trades),
		Wins:                len(wins),
		Losses:              len(losses),
		WinRate:             round1(winRate),
		TotalPnL:            round2(totalPnL),
		MaxDrawdown:         round2(maxDrawdown),
		MaxDrawdownPct:      round1(maxDrawdownPct),
		SharpeRatio:         round2(sharpe),
		SortinoRatio:        round2(sortinoRatio),
		ProfitFactor:        round2(profitFactor),
		RecoveryFactor:      round2(recoveryFactor),
		AvgRR:               round2(avgRR),
		AvgWin:              round2(avgWin),
		AvgLoss:             round2(avgLoss),
		LargestWin:          round2(largestWin),
		LargestLoss:         round2(largestLoss),
		ConsecutiveWins:     maxConWins,
		ConsecutiveLosses:   maxConLosses,
		AvgDurationBars:     round1(avgDuration),
		CAGR:                round2(cagr),
		CalmarRatio:         round2(calmar),
		UlcerIndex:          round2(ulcerIndex(equityCurve)),
		Expectancy:          round2(expectancy),
		Skewness:            round2(skew),
		Kurtosis:            round2(kurt),
		BestTradeStreakPnL:  round2(bestStreak),
		WorstTradeStreakPnL: round2(worstStreak),
		MonthlyReturns:      monthly,
		WinRateLong:         round1(winRateLong),
		WinRateShort:        round1(winRateShort),
		AvgBarsWinners:      round1(meanOf(winnerDur)),
		AvgBarsLosers:       round1(meanOf(loserDur)),
	}
}

func winRateOf(trades []Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades)) * 100
}
