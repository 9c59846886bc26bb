package pages

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Pending は非同期に実行中のページ数判定です。
type Pending struct {
	ID string

	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

// Start は doc の判定をバックグラウンドで開始します。
// Cancel を呼ぶと解析は打ち切られ、結果は DefaultPages になります。
func (c *Counter) Start(ctx context.Context, id string, doc Document) *Pending {
	if ctx == nil {
		ctx = context.Background()
	}
	if id == "" {
		id = uuid.NewString()
	}
	runCtx, cancel := context.WithCancel(ctx)
	p := &Pending{
		ID:     id,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		defer cancel()
		p.result = c.Count(runCtx, doc)
	}()
	return p
}

// Done は判定完了時に閉じられるチャネルを返します。
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Cancel は判定を打ち切ります。
func (p *Pending) Cancel() {
	p.cancel()
}

// Wait は判定の完了を待ちます。ctx が先に終了した場合はそのエラーを返します。
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		return p.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Tracker は最新の判定要求だけを有効とし、古い要求の結果を破棄するためのものです。
type Tracker struct {
	counter *Counter

	mu      sync.Mutex
	current *Pending
}

// NewTracker は Tracker を作成します。
func NewTracker(counter *Counter) *Tracker {
	return &Tracker{counter: counter}
}

// Begin は新しい判定を開始し、それまでの判定を打ち切ります。
func (t *Tracker) Begin(ctx context.Context, doc Document) *Pending {
	p := t.counter.Start(ctx, "", doc)

	t.mu.Lock()
	prev := t.current
	t.current = p
	t.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	return p
}

// IsCurrent は id が最新の要求かどうかを返します。
func (t *Tracker) IsCurrent(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current != nil && t.current.ID == id
}

// Reset は実行中の判定を打ち切り、最新の要求をなくします（ファイル削除や画面遷移時）。
func (t *Tracker) Reset() {
	t.mu.Lock()
	prev := t.current
	t.current = nil
	t.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
}

// Await は p の完了を待ち、p が最新の要求である場合のみ結果を返します。
// 古い要求だった場合は ok が false になります。
func (t *Tracker) Await(ctx context.Context, p *Pending) (result Result, ok bool, err error) {
	result, err = p.Wait(ctx)
	if err != nil {
		return Result{}, false, err
	}
	if !t.IsCurrent(p.ID) {
		return Result{}, false, nil
	}
	return result, true, nil
}
