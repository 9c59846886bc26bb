package pricing

import (
	"github.com/shopspring/decimal"
)

// Table は料金表です。料金と両面係数は製品要件として設定から与えます。
type Table struct {
	Monochrome   decimal.Decimal // モノクロ1ページあたり
	Color        decimal.Decimal // カラー1ページあたり
	DuplexFactor decimal.Decimal // 両面印刷時の係数（1未満なら割引、1超なら割増）
	MaxCopies    int             // 部数の上限（0以下なら上限なし）
}

// DefaultTable はモノクロ5・カラー10・両面2倍・最大100部の料金表です。
func DefaultTable() Table {
	return Table{
		Monochrome:   decimal.NewFromInt(5),
		Color:        decimal.NewFromInt(10),
		DuplexFactor: decimal.NewFromInt(2),
		MaxCopies:    100,
	}
}

// Estimate は見積もり結果です。
type Estimate struct {
	Amount         decimal.Decimal // 小数点以下2桁に丸めた金額
	EffectivePages int
	Copies         int
	PageRanges     string
}

// PricePerPage は色設定に対応する単価を返します。
func (t Table) PricePerPage(mode ColorMode) decimal.Decimal {
	if mode == Color {
		return t.Color
	}
	return t.Monochrome
}

// Estimate は p の料金を計算します。同じ入力には常に同じ結果を返します。
func (t Table) Estimate(p Preferences) Estimate {
	p = p.normalize(t.MaxCopies)

	factor := decimal.NewFromInt(1)
	if p.Duplex {
		factor = t.DuplexFactor
	}

	pages := EffectivePages(p)
	amount := t.PricePerPage(p.ColorMode).
		Mul(decimal.NewFromInt(int64(pages))).
		Mul(decimal.NewFromInt(int64(p.Copies))).
		Mul(factor).
		Round(2) // 0以上の値では half-up と同じ
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	return Estimate{
		Amount:         amount,
		EffectivePages: pages,
		Copies:         p.Copies,
		PageRanges:     ResolvePageRanges(p),
	}
}
