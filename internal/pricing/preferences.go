// Package pricing は印刷設定から料金の見積もりを計算します。
package pricing

import (
	"strings"
)

// ColorMode は印刷の色設定です。
type ColorMode string

const (
	Monochrome ColorMode = "monochrome"
	Color      ColorMode = "color"
)

// Selection は印刷対象ページの選び方です。
type Selection string

const (
	SelectAll    Selection = "all"
	SelectOdd    Selection = "odd"
	SelectEven   Selection = "even"
	SelectCustom Selection = "custom"
)

// Preferences は利用者が画面で指定する印刷設定です。
type Preferences struct {
	PageCount   int       `json:"pageCount"`
	ColorMode   ColorMode `json:"colorMode"`
	Copies      int       `json:"copies"`
	Duplex      bool      `json:"duplex"`
	Selection   Selection `json:"pageSelection"`
	CustomRange string    `json:"customRange,omitempty"` // Selection が custom の場合のみ有効
}

// ParseColorMode はフロントエンドの表記揺れ（bw, grayscale 等）を吸収します。
func ParseColorMode(v string) (ColorMode, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "monochrome", "bw", "b/w", "grayscale", "greyscale", "mono":
		return Monochrome, true
	case "color", "colour":
		return Color, true
	default:
		return "", false
	}
}

// ParseSelection はページ選択の指定を解釈します。空文字は all とみなします。
func ParseSelection(v string) (Selection, bool) {
	switch Selection(strings.ToLower(strings.TrimSpace(v))) {
	case "", SelectAll:
		return SelectAll, true
	case SelectOdd:
		return SelectOdd, true
	case SelectEven:
		return SelectEven, true
	case SelectCustom:
		return SelectCustom, true
	default:
		return "", false
	}
}

// normalize は見積もりが常に計算できるよう値を補正します。
func (p Preferences) normalize(maxCopies int) Preferences {
	if p.PageCount < 1 {
		p.PageCount = 1
	}
	if p.Copies < 1 {
		p.Copies = 1
	}
	if maxCopies > 0 && p.Copies > maxCopies {
		p.Copies = maxCopies
	}
	if p.ColorMode != Color {
		p.ColorMode = Monochrome
	}
	switch p.Selection {
	case SelectOdd, SelectEven, SelectCustom:
	default:
		p.Selection = SelectAll
	}
	return p
}
