package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCountCustomRange(t *testing.T) {
	tests := []struct {
		expr  string
		pages int
		want  int
	}{
		{expr: "1,3,5-7", pages: 10, want: 5},
		{expr: " 2 , 4-5 ", pages: 10, want: 3},
		{expr: "", pages: 10, want: 0},
		{expr: "   ", pages: 10, want: 0},
		{expr: "11,12", pages: 10, want: 0},
		{expr: "0", pages: 10, want: 0},
		{expr: "8-20", pages: 10, want: 3},
		{expr: "0-2", pages: 10, want: 2},
		{expr: "7-3", pages: 10, want: 0},
		{expr: "abc,1-x,-3,4-,5", pages: 10, want: 1},
		{expr: "1,1", pages: 10, want: 2},
		{expr: "1-99999999999999999999", pages: 10, want: 10},
		{expr: "3-99999999999999999999", pages: 10, want: 8},
		{expr: "99999999999999999999-3", pages: 10, want: 0},
		{expr: "99999999999999999999", pages: 10, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, CountCustomRange(tt.expr, tt.pages))
		})
	}
}

func TestEffectivePages(t *testing.T) {
	tests := []struct {
		name string
		p    Preferences
		want int
	}{
		{name: "all", p: Preferences{PageCount: 9, Selection: SelectAll}, want: 9},
		{name: "odd rounds up", p: Preferences{PageCount: 9, Selection: SelectOdd}, want: 5},
		{name: "even rounds up", p: Preferences{PageCount: 9, Selection: SelectEven}, want: 5},
		{name: "odd even count", p: Preferences{PageCount: 4, Selection: SelectOdd}, want: 2},
		{name: "custom", p: Preferences{PageCount: 10, Selection: SelectCustom, CustomRange: "1,3,5-7"}, want: 5},
		{name: "custom empty defaults to one", p: Preferences{PageCount: 10, Selection: SelectCustom}, want: 1},
		{name: "custom unmatched defaults to one", p: Preferences{PageCount: 3, Selection: SelectCustom, CustomRange: "40-50"}, want: 1},
		{name: "custom oversized end clamps", p: Preferences{PageCount: 10, Selection: SelectCustom, CustomRange: "3-99999999999999999999"}, want: 8},
		{name: "custom ignored for all", p: Preferences{PageCount: 6, Selection: SelectAll, CustomRange: "1"}, want: 6},
		{name: "unknown selection is all", p: Preferences{PageCount: 6, Selection: "reverse"}, want: 6},
		{name: "zero page count", p: Preferences{PageCount: 0}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectivePages(tt.p))
		})
	}
}

func TestEstimateScenarios(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		name      string
		p         Preferences
		want      string
		wantPages int
	}{
		{
			name:      "monochrome all pages",
			p:         Preferences{PageCount: 10, ColorMode: Monochrome, Copies: 2, Selection: SelectAll},
			want:      "100.00",
			wantPages: 10,
		},
		{
			name:      "color odd duplex",
			p:         Preferences{PageCount: 4, ColorMode: Color, Copies: 1, Duplex: true, Selection: SelectOdd},
			want:      "40.00",
			wantPages: 2,
		},
		{
			name:      "custom range",
			p:         Preferences{PageCount: 10, ColorMode: Monochrome, Copies: 1, Selection: SelectCustom, CustomRange: "1,3,5-7"},
			want:      "25.00",
			wantPages: 5,
		},
		{
			name:      "custom range with oversized end",
			p:         Preferences{PageCount: 10, ColorMode: Monochrome, Copies: 1, Selection: SelectCustom, CustomRange: "3-99999999999999999999"},
			want:      "40.00",
			wantPages: 8,
		},
		{
			name:      "copies clamped to maximum",
			p:         Preferences{PageCount: 1, ColorMode: Monochrome, Copies: 500, Selection: SelectAll},
			want:      "500.00",
			wantPages: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.Estimate(tt.p)
			assert.Equal(t, tt.want, got.Amount.StringFixed(2))
			assert.Equal(t, tt.wantPages, got.EffectivePages)
		})
	}
}

func TestEstimateRoundsHalfUp(t *testing.T) {
	table := Table{
		Monochrome:   decimal.RequireFromString("0.125"),
		Color:        decimal.RequireFromString("0.75"),
		DuplexFactor: decimal.RequireFromString("0.8"),
	}

	got := table.Estimate(Preferences{PageCount: 1, Copies: 1})
	assert.Equal(t, "0.13", got.Amount.StringFixed(2))

	got = table.Estimate(Preferences{PageCount: 3, Copies: 1, Duplex: true, ColorMode: Color})
	assert.Equal(t, "1.80", got.Amount.StringFixed(2))
}

func TestEstimateMonotonic(t *testing.T) {
	table := DefaultTable()
	base := Preferences{PageCount: 5, ColorMode: Color, Copies: 1, Selection: SelectAll}

	prev := decimal.Zero
	for copies := 1; copies <= 120; copies++ {
		p := base
		p.Copies = copies
		amount := table.Estimate(p).Amount
		assert.True(t, amount.GreaterThanOrEqual(prev), "copies=%d", copies)
		prev = amount
	}

	prev = decimal.Zero
	for pages := 1; pages <= 50; pages++ {
		p := base
		p.PageCount = pages
		amount := table.Estimate(p).Amount
		assert.True(t, amount.GreaterThanOrEqual(prev), "pages=%d", pages)
		prev = amount
	}
}

func TestEstimateIdempotent(t *testing.T) {
	table := DefaultTable()
	p := Preferences{PageCount: 7, ColorMode: Color, Copies: 3, Duplex: true, Selection: SelectCustom, CustomRange: "2-4"}

	first := table.Estimate(p)
	second := table.Estimate(p)
	assert.True(t, first.Amount.Equal(second.Amount))
	assert.Equal(t, first, second)
}

func TestEstimateNeverNegative(t *testing.T) {
	table := Table{Monochrome: decimal.NewFromInt(-5), DuplexFactor: decimal.NewFromInt(1)}
	got := table.Estimate(Preferences{PageCount: 2, Copies: 1})
	assert.True(t, got.Amount.IsZero())
}

func TestResolvePageRanges(t *testing.T) {
	tests := []struct {
		name string
		p    Preferences
		want string
	}{
		{name: "all", p: Preferences{PageCount: 12, Selection: SelectAll}, want: "1-12"},
		{name: "odd", p: Preferences{PageCount: 6, Selection: SelectOdd}, want: "1,3,5"},
		{name: "even", p: Preferences{PageCount: 7, Selection: SelectEven}, want: "2,4,6"},
		{name: "even single page", p: Preferences{PageCount: 1, Selection: SelectEven}, want: ""},
		{name: "custom raw", p: Preferences{PageCount: 10, Selection: SelectCustom, CustomRange: " 1,3,5-7 "}, want: "1,3,5-7"},
		{name: "custom empty", p: Preferences{PageCount: 10, Selection: SelectCustom}, want: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePageRanges(tt.p))
		})
	}
}

func TestParseColorModeAndSelection(t *testing.T) {
	mode, ok := ParseColorMode("BW")
	assert.True(t, ok)
	assert.Equal(t, Monochrome, mode)

	mode, ok = ParseColorMode("Color")
	assert.True(t, ok)
	assert.Equal(t, Color, mode)

	_, ok = ParseColorMode("sepia")
	assert.False(t, ok)

	sel, ok := ParseSelection("")
	assert.True(t, ok)
	assert.Equal(t, SelectAll, sel)

	sel, ok = ParseSelection("Custom")
	assert.True(t, ok)
	assert.Equal(t, SelectCustom, sel)

	_, ok = ParseSelection("first-half")
	assert.False(t, ok)
}
