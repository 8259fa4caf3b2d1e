package rfi

import (
	"errors"
	"math"
	"testing"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name      string
		selection string
		bandwidth float64
		nbin      int
		want      Range
	}{
		{"default central 80%", "", 1024, 512, Range{102.4, 921.6, 51, 459}},
		{"default keyword", "default", 1024, 512, Range{102.4, 921.6, 51, 459}},
		{"whole band", ":", 1024, 512, Range{0, 1024, 0, 511}},
		{"all keyword", "all", 1024, 512, Range{0, 1024, 0, 511}},
		{"explicit interval", "200:800", 1024, 512, Range{200, 800, 100, 399}},
		{"narrow interval collapses to one bin", "511.5:512.5", 1024, 512, Range{511.5, 512.5, 255, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSelection(tt.selection, tt.bandwidth, tt.nbin)
			if err != nil {
				t.Fatalf("ParseSelection: %v", err)
			}
			if math.Abs(got.FreqMin-tt.want.FreqMin) > 1e-9 ||
				math.Abs(got.FreqMax-tt.want.FreqMax) > 1e-9 {
				t.Errorf("frequencies = (%v, %v), want (%v, %v)",
					got.FreqMin, got.FreqMax, tt.want.FreqMin, tt.want.FreqMax)
			}
			if got.BinMin != tt.want.BinMin || got.BinMax != tt.want.BinMax {
				t.Errorf("bins = (%d, %d), want (%d, %d)",
					got.BinMin, got.BinMax, tt.want.BinMin, tt.want.BinMax)
			}
		})
	}
}

func TestParseSelectionErrors(t *testing.T) {
	tests := []struct {
		name      string
		selection string
		bandwidth float64
		nbin      int
	}{
		{"garbage", "garbage", 1024, 512},
		{"too many fields", "1:2:3", 1024, 512},
		{"non-numeric bounds", "a:b", 1024, 512},
		{"inverted interval", "800:200", 1024, 512},
		{"beyond the band", "0:2048", 1024, 512},
		{"negative lower bound", "-10:100", 1024, 512},
		{"zero bandwidth", "", 0, 512},
		{"zero bins", "", 1024, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSelection(tt.selection, tt.bandwidth, tt.nbin)
			if !errors.Is(err, ErrFrequencySpec) {
				t.Errorf("err = %v, want ErrFrequencySpec", err)
			}
		})
	}
}

func TestParseSelectionBinsStayInBand(t *testing.T) {
	for _, selection := range []string{"", ":", "100:900", "511.5:512.5"} {
		for _, nbin := range []int{64, 512, 1024, 1000} {
			r, err := ParseSelection(selection, 1024, nbin)
			if err != nil {
				t.Fatalf("ParseSelection(%q, 1024, %d): %v", selection, nbin, err)
			}
			if r.BinMin < 0 || r.BinMax >= nbin || r.BinMin > r.BinMax {
				t.Errorf("ParseSelection(%q, 1024, %d) = bins (%d, %d), out of band",
					selection, nbin, r.BinMin, r.BinMax)
			}
		}
	}
}

func TestFrequencyMask(t *testing.T) {
	r, err := ParseSelection("200:800", 1024, 512)
	if err != nil {
		t.Fatal(err)
	}
	mask := r.FrequencyMask(512)
	var count int
	for j, ok := range mask {
		if ok {
			count++
			if j < r.BinMin || j >= r.BinMax {
				t.Fatalf("channel %d retained outside [%d, %d)", j, r.BinMin, r.BinMax)
			}
		}
	}
	if count != r.BinMax-r.BinMin {
		t.Errorf("retained %d channels, want %d", count, r.BinMax-r.BinMin)
	}
}
