package repository

import (
	"math"
	"sort"
	"time"
)

// Percentile は昇順ソート済みとは限らないセッション長の集合に対して
// p分位点（pは0〜100）を連続補間で計算する。
// PostgreSQLのpercentile_cont、NumPyのlinear補間と同じ定義。
// 空集合の場合は0を返す。pは[0,100]にクランプする。
func Percentile(lengths []time.Duration, p float64) time.Duration {
	n := len(lengths)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return lengths[0]
	}

	sorted := make([]time.Duration, n)
	copy(sorted, lengths)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}

	// 順位 rank = p/100 * (n-1) を挟む2点の線形補間
	rank := p / 100 * float64(n-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	frac := rank - float64(lower)
	lo := float64(sorted[lower])
	hi := float64(sorted[upper])
	return time.Duration(lo + frac*(hi-lo))
}
