package pricing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CountCustomRange は "1,3,5-7" 形式の指定に該当するページ数を返します。
// 解釈できないトークンは無視し、範囲はページ数の内側に切り詰めます。
// トークンごとに数えるため、重複した指定はそのまま加算されます。
func CountCustomRange(expr string, pageCount int) int {
	if strings.TrimSpace(expr) == "" {
		return 0
	}

	count := 0
	for _, seg := range strings.Split(expr, ",") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}

		if isDigits(seg) {
			page := parsePage(seg)
			if page >= 1 && page <= pageCount {
				count++
			}
			continue
		}

		parts := strings.SplitN(seg, "-", 2)
		if len(parts) != 2 || !isDigits(parts[0]) || !isDigits(parts[1]) {
			continue
		}
		start, end := parsePage(parts[0]), parsePage(parts[1])
		start = max(1, start)
		end = min(pageCount, end)
		if start <= end {
			count += end - start + 1
		}
	}
	return count
}

// EffectivePages はページ選択を適用した課金対象ページ数を返します（常に1以上）。
func EffectivePages(p Preferences) int {
	p = p.normalize(0)
	switch p.Selection {
	case SelectOdd, SelectEven:
		return (p.PageCount + 1) / 2
	case SelectCustom:
		n := CountCustomRange(p.CustomRange, p.PageCount)
		if n == 0 {
			return 1
		}
		return n
	default:
		return p.PageCount
	}
}

// ResolvePageRanges は印刷バックエンドへ渡すページ範囲文字列を生成します。
func ResolvePageRanges(p Preferences) string {
	p = p.normalize(0)
	switch p.Selection {
	case SelectOdd:
		return joinPages(p.PageCount, 1)
	case SelectEven:
		return joinPages(p.PageCount, 0)
	case SelectCustom:
		if raw := strings.TrimSpace(p.CustomRange); raw != "" {
			return raw
		}
		return "1"
	default:
		return fmt.Sprintf("1-%d", p.PageCount)
	}
}

func joinPages(pageCount, parity int) string {
	pages := make([]string, 0, (pageCount+1)/2)
	for page := 1; page <= pageCount; page++ {
		if page%2 == parity {
			pages = append(pages, strconv.Itoa(page))
		}
	}
	return strings.Join(pages, ",")
}

// parsePage は数字のみの文字列をページ番号に変換します。int に収まらない値は math.MaxInt に飽和させます。
func parsePage(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return math.MaxInt
	}
	return n
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
