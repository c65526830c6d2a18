package repository

import (
	"testing"
	"time"
)

// 空集合は0を返すことを検証
func TestPercentile_Empty_ReturnsZero(t *testing.T) {
	got := Percentile(nil, 50)
	if got != 0 {
		t.Errorf("Percentile(nil, 50) = %v, want 0", got)
	}
}

// 要素が1つの場合は全分位点でその値を返すことを検証
func TestPercentile_SingleElement_AllPercentilesEqual(t *testing.T) {
	lengths := []time.Duration{10 * time.Second}

	for _, p := range []float64{0, 25, 50, 95, 100} {
		if got := Percentile(lengths, p); got != 10*time.Second {
			t.Errorf("Percentile(単一要素, %v) = %v, want 10s", p, got)
		}
	}
}

// 連続補間による中央値の計算を検証
func TestPercentile_Median_LinearInterpolation(t *testing.T) {
	tests := []struct {
		name    string
		lengths []time.Duration
		p       float64
		want    time.Duration
	}{
		{
			name:    "奇数個の中央値は中央の要素",
			lengths: []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second},
			p:       50,
			want:    2 * time.Second,
		},
		{
			name:    "偶数個の中央値は中央2要素の平均",
			lengths: []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second},
			p:       50,
			want:    2500 * time.Millisecond,
		},
		{
			name:    "未ソート入力でもソートしてから計算する",
			lengths: []time.Duration{3 * time.Second, 1 * time.Second, 2 * time.Second},
			p:       50,
			want:    2 * time.Second,
		},
		{
			name:    "p=0は最小値",
			lengths: []time.Duration{5 * time.Second, 1 * time.Second, 9 * time.Second},
			p:       0,
			want:    1 * time.Second,
		},
		{
			name:    "p=100は最大値",
			lengths: []time.Duration{5 * time.Second, 1 * time.Second, 9 * time.Second},
			p:       100,
			want:    9 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.lengths, tt.p)
			if got != tt.want {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.lengths, tt.p, got, tt.want)
			}
		})
	}
}

// 95パーセンタイルの補間計算を検証
func TestPercentile_P95_Interpolates(t *testing.T) {
	// 1s..10s の10要素。rank = 0.95*9 = 8.55 → 9s + 0.55*(10s-9s) = 9.55s
	lengths := make([]time.Duration, 10)
	for i := range lengths {
		lengths[i] = time.Duration(i+1) * time.Second
	}

	got := Percentile(lengths, 95)
	want := 9550 * time.Millisecond
	if got != want {
		t.Errorf("Percentile(1..10s, 95) = %v, want %v", got, want)
	}
}

// 範囲外のpはクランプされることを検証
func TestPercentile_OutOfRange_Clamped(t *testing.T) {
	lengths := []time.Duration{1 * time.Second, 2 * time.Second}

	if got := Percentile(lengths, -10); got != 1*time.Second {
		t.Errorf("Percentile(p=-10) = %v, want 1s", got)
	}
	if got := Percentile(lengths, 150); got != 2*time.Second {
		t.Errorf("Percentile(p=150) = %v, want 2s", got)
	}
}
