package pages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Parser はPDFの構造を解析してページ数を返します。
type Parser interface {
	PageCount(ctx context.Context, rs io.ReadSeeker) (int, error)
}

// ParserFunc は関数を Parser として扱うためのアダプタです。
type ParserFunc func(ctx context.Context, rs io.ReadSeeker) (int, error)

// PageCount は f(ctx, rs) を呼び出します。
func (f ParserFunc) PageCount(ctx context.Context, rs io.ReadSeeker) (int, error) {
	return f(ctx, rs)
}

// PDFCPUParser は pdfcpu を利用した Parser 実装です。
type PDFCPUParser struct {
	conf *model.Configuration
}

// NewPDFCPUParser は設定を明示的に受け取って Parser を作成します。
// conf が nil の場合は pdfcpu の既定設定を緩い検証モードで使用します。
func NewPDFCPUParser(conf *model.Configuration) *PDFCPUParser {
	if conf == nil {
		conf = model.NewDefaultConfiguration()
		conf.ValidationMode = model.ValidationRelaxed
	}
	return &PDFCPUParser{conf: conf}
}

// PageCount は rs をPDFとして読み込み、ページ数を返します。
func (p *PDFCPUParser) PageCount(ctx context.Context, rs io.ReadSeeker) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := pdfapi.PageCount(rs, p.conf)
	if err != nil {
		if isEncryptionError(err) {
			return 0, fmt.Errorf("%w: %v", ErrEncrypted, err)
		}
		return 0, fmt.Errorf("pdfcpu: %w", err)
	}
	return n, nil
}

// isEncryptionError は pdfcpu の暗号化関連エラーを判定します。
// 番兵エラーで判定できない場合はメッセージで判定します。
func isEncryptionError(err error) bool {
	if errors.Is(err, pdfcpu.ErrWrongPassword) || errors.Is(err, pdfcpu.ErrUnknownEncryption) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}
