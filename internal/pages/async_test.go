package pages

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// contentParser は内容が "slow" の場合にキャンセルされるまで待機します。
func contentParser() Parser {
	return ParserFunc(func(ctx context.Context, rs io.ReadSeeker) (int, error) {
		data, err := io.ReadAll(rs)
		if err != nil {
			return 0, err
		}
		if string(data) == "slow" {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return len(data), nil
	})
}

func TestStartAndWait(t *testing.T) {
	counter := NewCounter(contentParser())

	p := counter.Start(context.Background(), "req-1", Document{Name: "a.pdf", Content: []byte("12345")})
	assert.Equal(t, "req-1", p.ID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Pages)
	assert.True(t, res.Succeeded)
}

func TestStartGeneratesID(t *testing.T) {
	counter := NewCounter(contentParser())
	p := counter.Start(context.Background(), "", Document{Name: "a.txt"})
	assert.NotEmpty(t, p.ID)
	<-p.Done()
}

func TestCancelYieldsDefault(t *testing.T) {
	counter := NewCounter(contentParser())

	p := counter.Start(context.Background(), "", Document{Name: "a.pdf", Content: []byte("slow")})
	p.Cancel()

	res, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pages)
	assert.ErrorIs(t, res.Reason, context.Canceled)
}

func TestWaitHonoursCallerContext(t *testing.T) {
	counter := NewCounter(contentParser())
	p := counter.Start(context.Background(), "", Document{Name: "a.pdf", Content: []byte("slow")})
	defer p.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTrackerDiscardsStaleResults(t *testing.T) {
	tracker := NewTracker(NewCounter(contentParser()))
	ctx := context.Background()

	first := tracker.Begin(ctx, Document{Name: "old.pdf", Content: []byte("slow")})
	second := tracker.Begin(ctx, Document{Name: "new.pdf", Content: []byte("abc")})

	assert.False(t, tracker.IsCurrent(first.ID))
	assert.True(t, tracker.IsCurrent(second.ID))

	_, ok, err := tracker.Await(ctx, first)
	require.NoError(t, err)
	assert.False(t, ok, "superseded request must be discarded")

	res, ok, err := tracker.Await(ctx, second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, res.Pages)
}

func TestTrackerReset(t *testing.T) {
	tracker := NewTracker(NewCounter(contentParser()))
	ctx := context.Background()

	p := tracker.Begin(ctx, Document{Name: "deleted.pdf", Content: []byte("slow")})
	tracker.Reset()

	_, ok, err := tracker.Await(ctx, p)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, tracker.IsCurrent(p.ID))
}
