package pages

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/kagpatra/internal/metrics"
)

// Counter は文書のページ数を判定します。PDF以外と解析失敗時は DefaultPages を返し、
// エラーを呼び出し元に返すことはありません。
type Counter struct {
	parser  Parser
	timeout time.Duration
	logger  zerolog.Logger
}

// Option は Counter の設定を変更します。
type Option func(*Counter)

// WithTimeout は1件あたりの解析時間の上限を設定します。0以下なら無制限です。
func WithTimeout(d time.Duration) Option {
	return func(c *Counter) {
		c.timeout = d
	}
}

// WithLogger は診断ログの出力先を設定します。
func WithLogger(l zerolog.Logger) Option {
	return func(c *Counter) {
		c.logger = l
	}
}

// NewCounter は parser を使う Counter を作成します。
func NewCounter(parser Parser, opts ...Option) *Counter {
	c := &Counter{
		parser: parser,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Count は doc のページ数を返します。
func (c *Counter) Count(ctx context.Context, doc Document) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	kind := Classify(doc)
	if kind != KindPDF {
		metrics.ObservePageCount(string(kind), "skipped")
		return Result{Pages: DefaultPages, Kind: kind}
	}

	start := time.Now()
	n, err := c.parse(ctx, doc.Content)
	metrics.ObserveParseDuration(time.Since(start))
	if err == nil && n < 1 {
		err = ErrNoPages
	}
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("file", doc.Name).
			Int("size", len(doc.Content)).
			Msg("pdf page count failed, falling back to default")
		metrics.ObservePageCount(string(KindPDF), "fallback")
		return Result{Pages: DefaultPages, Kind: KindPDF, Reason: err}
	}

	metrics.ObservePageCount(string(KindPDF), "parsed")
	return Result{Pages: n, Succeeded: true, Kind: KindPDF}
}

type parseOutcome struct {
	pages int
	err   error
}

func (c *Counter) parse(ctx context.Context, content []byte) (int, error) {
	if c.parser == nil {
		return 0, ErrParserUnavailable
	}
	if len(content) == 0 {
		return 0, ErrEmptyDocument
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// パーサーがコンテキストを見ない場合でも打ち切れるよう別 goroutine で実行する
	done := make(chan parseOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- parseOutcome{err: fmt.Errorf("pages: parser panic: %v", r)}
			}
		}()
		n, err := c.parser.PageCount(ctx, bytes.NewReader(content))
		done <- parseOutcome{pages: n, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case out := <-done:
		return out.pages, out.err
	}
}
