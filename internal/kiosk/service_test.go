package kiosk

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/kagpatra/internal/backend"
	"github.com/yourusername/kagpatra/internal/config"
	"github.com/yourusername/kagpatra/internal/pages"
	"github.com/yourusername/kagpatra/internal/pricing"
	"github.com/yourusername/kagpatra/internal/storage"
)

type stubSubmitter struct {
	jobID string
	prefs backend.PrintPreferences
	err   error
}

func (s *stubSubmitter) SubmitPreferences(ctx context.Context, jobID string, prefs backend.PrintPreferences) error {
	s.jobID = jobID
	s.prefs = prefs
	return s.err
}

func fixedParser(n int, err error) pages.Parser {
	return pages.ParserFunc(func(ctx context.Context, rs io.ReadSeeker) (int, error) {
		return n, err
	})
}

func newTestService(t *testing.T, parser pages.Parser, submitter PreferencesSubmitter) (*Service, *storage.Local) {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{
		MaxFileSize:      1024,
		MaxCopies:        100,
		Currency:         "INR",
		JobExpireMinutes: 10,
	}
	svc, err := NewService(cfg, Options{
		Store:     store,
		Counter:   pages.NewCounter(parser),
		Table:     pricing.DefaultTable(),
		Submitter: submitter,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return svc, store
}

func newFileHeader(t *testing.T, filename, contentType string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	t.Cleanup(func() { _ = req.MultipartForm.RemoveAll() })
	return req.MultipartForm.File["file"][0]
}

func TestCountMultipartPDF(t *testing.T) {
	svc, store := newTestService(t, fixedParser(7, nil), nil)
	fh := newFileHeader(t, "report.pdf", "application/pdf", []byte("%PDF-1.4 dummy"))

	var stages []string
	manifest, err := svc.PrepareCount(context.Background(), fh)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", manifest.File.OriginalName)
	assert.Equal(t, "application/pdf", manifest.File.MediaType)

	outcome, err := svc.RunCount(context.Background(), manifest.RequestID, func(stage string, percent int) {
		stages = append(stages, stage)
	})
	require.NoError(t, err)

	assert.Equal(t, 7, outcome.Pages)
	assert.True(t, outcome.Succeeded)
	assert.Equal(t, pages.KindPDF, outcome.Kind)
	assert.Equal(t, "PDF document", outcome.FileType)
	assert.Empty(t, outcome.Warning)
	assert.Equal(t, []string{StageLoad, StageParse, StageCompleted}, stages)

	dir, err := store.Dir(manifest.RequestID)
	require.NoError(t, err)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "workspace should be removed")
}

func TestCountMultipartFallback(t *testing.T) {
	svc, _ := newTestService(t, fixedParser(0, errors.New("broken xref")), nil)
	fh := newFileHeader(t, "broken.pdf", "application/pdf", []byte("%PDF-garbage"))

	outcome, err := svc.CountMultipart(context.Background(), fh)
	require.NoError(t, err)

	assert.Equal(t, pages.DefaultPages, outcome.Pages)
	assert.False(t, outcome.Succeeded)
	assert.NotEmpty(t, outcome.Warning)
}

func TestCountMultipartNonPDF(t *testing.T) {
	svc, _ := newTestService(t, fixedParser(0, errors.New("must not be called")), nil)
	fh := newFileHeader(t, "notes.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", []byte("PK\x03\x04"))

	outcome, err := svc.CountMultipart(context.Background(), fh)
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Pages)
	assert.Equal(t, pages.KindOther, outcome.Kind)
	assert.Equal(t, "Word document", outcome.FileType)
	assert.Empty(t, outcome.Warning)
}

func TestPrepareCountValidation(t *testing.T) {
	svc, _ := newTestService(t, fixedParser(1, nil), nil)

	_, err := svc.PrepareCount(context.Background(), nil)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_INPUT", apiErr.Code)

	_, err = svc.PrepareCount(context.Background(), newFileHeader(t, "big.pdf", "application/pdf", bytes.Repeat([]byte("x"), 2048)))
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "LIMIT_EXCEEDED", apiErr.Code)
}

func TestPrepareCountCanceled(t *testing.T) {
	svc, _ := newTestService(t, fixedParser(1, nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.PrepareCount(ctx, newFileHeader(t, "a.pdf", "application/pdf", []byte("%PDF")))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunCountUnknownRequest(t *testing.T) {
	svc, _ := newTestService(t, fixedParser(1, nil), nil)

	_, err := svc.RunCount(context.Background(), "missing", nil)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "REQUEST_NOT_FOUND", apiErr.Code)

	_, err = svc.RunCount(context.Background(), "../etc", nil)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_INPUT", apiErr.Code)
}

func TestDiscardCount(t *testing.T) {
	svc, _ := newTestService(t, fixedParser(3, nil), nil)
	manifest, err := svc.PrepareCount(context.Background(), newFileHeader(t, "a.pdf", "application/pdf", []byte("%PDF")))
	require.NoError(t, err)

	require.NoError(t, svc.DiscardCount(manifest.RequestID))

	_, err = svc.RunCount(context.Background(), manifest.RequestID, nil)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "REQUEST_NOT_FOUND", apiErr.Code)
}

func TestSubmitPreferences(t *testing.T) {
	sub := &stubSubmitter{}
	svc, _ := newTestService(t, fixedParser(1, nil), sub)
	prefs := pricing.Preferences{PageCount: 10, ColorMode: pricing.Monochrome, Copies: 2, Selection: pricing.SelectAll}

	est, forwarded, err := svc.SubmitPreferences(context.Background(), "job-1", prefs, "landscape")
	require.NoError(t, err)

	assert.True(t, forwarded)
	assert.Equal(t, "100.00", est.Amount.StringFixed(2))
	assert.Equal(t, "job-1", sub.jobID)
	assert.Equal(t, "Grayscale", sub.prefs.Color)
	assert.Equal(t, "1-10", sub.prefs.PageRanges)
	assert.Equal(t, "landscape", sub.prefs.Direction)
}

func TestSubmitPreferencesBackendFailure(t *testing.T) {
	sub := &stubSubmitter{err: &backend.StatusError{StatusCode: 503}}
	svc, _ := newTestService(t, fixedParser(1, nil), sub)

	_, forwarded, err := svc.SubmitPreferences(context.Background(), "job-1", pricing.Preferences{PageCount: 1, Copies: 1}, "")

	assert.False(t, forwarded)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "BACKEND_UNAVAILABLE", apiErr.Code)
}

func TestSubmitPreferencesWithoutBackend(t *testing.T) {
	svc, _ := newTestService(t, fixedParser(1, nil), nil)

	est, forwarded, err := svc.SubmitPreferences(context.Background(), "", pricing.Preferences{PageCount: 4, Copies: 1, ColorMode: pricing.Color}, "")
	require.NoError(t, err)
	assert.False(t, forwarded)
	assert.Equal(t, "40.00", est.Amount.StringFixed(2))
}
