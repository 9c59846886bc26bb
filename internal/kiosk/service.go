// Package kiosk はアップロード文書のページ数判定と印刷料金の見積もりを提供します。
package kiosk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yourusername/kagpatra/internal/backend"
	"github.com/yourusername/kagpatra/internal/config"
	"github.com/yourusername/kagpatra/internal/metrics"
	"github.com/yourusername/kagpatra/internal/pages"
	"github.com/yourusername/kagpatra/internal/pricing"
	"github.com/yourusername/kagpatra/internal/storage"
)

const defaultCleanupMin = 10

// PreferencesSubmitter は印刷設定を受け取る下流サービスです。
type PreferencesSubmitter interface {
	SubmitPreferences(ctx context.Context, jobID string, prefs backend.PrintPreferences) error
}

// Service はページ数判定と見積もりのユースケースをまとめます。
type Service struct {
	cfg       *config.Config
	store     *storage.Local
	counter   *pages.Counter
	table     pricing.Table
	submitter PreferencesSubmitter
	logger    zerolog.Logger
	now       func() time.Time
}

// Options は Service の依存関係です。Submitter が nil の場合は設定を転送しません。
type Options struct {
	Store     *storage.Local
	Counter   *pages.Counter
	Table     pricing.Table
	Submitter PreferencesSubmitter
	Logger    zerolog.Logger
}

// NewService は Service を作成します。
func NewService(cfg *config.Config, opts Options) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if opts.Store == nil {
		return nil, errors.New("store is nil")
	}
	if opts.Counter == nil {
		return nil, errors.New("counter is nil")
	}
	return &Service{
		cfg:       cfg,
		store:     opts.Store,
		counter:   opts.Counter,
		table:     opts.Table,
		submitter: opts.Submitter,
		logger:    opts.Logger,
		now:       time.Now,
	}, nil
}

// TableFromConfig は設定値から料金表を作成します。
func TableFromConfig(cfg *config.Config) pricing.Table {
	return pricing.Table{
		Monochrome:   cfg.PriceMonochrome,
		Color:        cfg.PriceColor,
		DuplexFactor: cfg.DuplexFactor,
		MaxCopies:    cfg.MaxCopies,
	}
}

// CountOutcome はページ数判定の結果として利用者へ返す情報です。
type CountOutcome struct {
	RequestID string     `json:"requestId"`
	Name      string     `json:"name"`
	FileType  string     `json:"fileType"`
	Kind      pages.Kind `json:"kind"`
	Pages     int        `json:"pages"`
	Succeeded bool       `json:"succeeded"`
	Warning   string     `json:"warning,omitempty"`
}

type storedFile struct {
	path         string
	originalName string
	mediaType    string
	size         int64
}

// CountMultipart はアップロードされたファイルのページ数を同期的に判定します。
func (s *Service) CountMultipart(ctx context.Context, file *multipart.FileHeader) (*CountOutcome, error) {
	manifest, err := s.PrepareCount(ctx, file)
	if err != nil {
		return nil, err
	}
	return s.RunCount(ctx, manifest.RequestID, nil)
}

// PrepareCount はファイルを作業ディレクトリへ保存し、判定要求のマニフェストを返します。
func (s *Service) PrepareCount(ctx context.Context, file *multipart.FileHeader) (*CountManifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if file == nil {
		return nil, newError("INVALID_INPUT", "ファイルを選択してください。", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}

	stored, err := s.storeMultipartFile(ctx, file, ws)
	if err != nil {
		_ = s.store.Remove(ws.requestID)
		return nil, err
	}

	manifest := &CountManifest{
		RequestID: ws.requestID,
		File: InputFile{
			StoredName:   filepath.Base(stored.path),
			OriginalName: stored.originalName,
			MediaType:    stored.mediaType,
			Size:         stored.size,
		},
		CreatedAt: s.now().UTC(),
	}
	if err := writeManifest(ws.dir, manifest); err != nil {
		_ = s.store.Remove(ws.requestID)
		return nil, fmt.Errorf("マニフェストの保存に失敗しました: %w", err)
	}

	// 取りに来ないまま放置された要求の後始末
	s.store.RemoveAfter(ws.requestID, s.expireAfter())

	return manifest, nil
}

// RunCount は保存済みの要求に対してページ数判定を実行し、作業ディレクトリを削除します。
func (s *Service) RunCount(ctx context.Context, requestID string, reporter ProgressReporter) (*CountOutcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(requestID) == "" {
		return nil, fmt.Errorf("requestID is required")
	}

	dir, err := s.store.Dir(requestID)
	if err != nil {
		return nil, newError("INVALID_INPUT", "要求IDの形式が正しくありません。", err)
	}
	ws := newWorkspace(requestID, dir)
	defer func() {
		_ = s.store.Remove(requestID)
	}()

	manifest, err := loadManifest(ws.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newError("REQUEST_NOT_FOUND", "指定された要求は存在しないか期限切れです。", err)
		}
		return nil, err
	}

	content, err := os.ReadFile(ws.inputPath(manifest.File.StoredName))
	if err != nil {
		return nil, fmt.Errorf("アップロードファイルの読み込みに失敗しました: %w", err)
	}
	reportProgress(reporter, StageLoad, 20)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := s.counter.Count(ctx, pages.Document{
		Name:      manifest.File.OriginalName,
		MediaType: manifest.File.MediaType,
		Content:   content,
	})
	reportProgress(reporter, StageParse, 60)

	outcome := &CountOutcome{
		RequestID: requestID,
		Name:      manifest.File.OriginalName,
		FileType:  pages.DisplayName(manifest.File.OriginalName),
		Kind:      result.Kind,
		Pages:     result.Pages,
		Succeeded: result.Succeeded,
		Warning:   result.Warning(),
	}

	s.logger.Info().
		Str("request_id", requestID).
		Str("kind", string(result.Kind)).
		Int("pages", result.Pages).
		Bool("succeeded", result.Succeeded).
		Msg("page count finished")

	reportProgress(reporter, StageCompleted, 100)
	return outcome, nil
}

// DiscardCount は判定要求の作業ディレクトリを削除します。
func (s *Service) DiscardCount(requestID string) error {
	return s.store.Remove(requestID)
}

// Estimate は印刷設定から見積もりを計算します。
func (s *Service) Estimate(p pricing.Preferences) pricing.Estimate {
	est := s.table.Estimate(p)
	mode, selection := pricing.Monochrome, p.Selection
	if p.ColorMode == pricing.Color {
		mode = pricing.Color
	}
	if selection == "" {
		selection = pricing.SelectAll
	}
	metrics.ObserveEstimate(string(mode), string(selection))
	return est
}

// Currency は見積もりの通貨コードを返します。
func (s *Service) Currency() string {
	return s.cfg.Currency
}

// MaxCopies は受け付ける部数の上限を返します。
func (s *Service) MaxCopies() int {
	return s.cfg.MaxCopies
}

// SubmitPreferences は見積もりを計算し、下流サービスが設定されていれば転送します。
func (s *Service) SubmitPreferences(ctx context.Context, jobID string, p pricing.Preferences, direction string) (pricing.Estimate, bool, error) {
	est := s.Estimate(p)
	if s.submitter == nil {
		return est, false, nil
	}
	if strings.TrimSpace(jobID) == "" {
		return est, false, newError("INVALID_INPUT", "jobId を指定してください。", nil)
	}

	payload := backend.NewPrintPreferences(p, est, direction)
	if err := s.submitter.SubmitPreferences(ctx, jobID, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			return est, false, err
		}
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to submit preferences")
		return est, false, newError("BACKEND_UNAVAILABLE", "印刷設定の送信に失敗しました。時間をおいて再度お試しください。", err)
	}
	return est, true, nil
}

func (s *Service) createWorkspace() (workspace, error) {
	requestID := uuid.NewString()
	dir, err := s.store.Create(requestID)
	if err != nil {
		return workspace{}, err
	}
	return newWorkspace(requestID, dir), nil
}

func (s *Service) storeMultipartFile(ctx context.Context, fh *multipart.FileHeader, ws workspace) (storedFile, error) {
	if fh.Size == 0 {
		return storedFile{}, newError("INVALID_INPUT", "空のファイルはアップロードできません。", nil)
	}
	if s.cfg.MaxFileSize > 0 && fh.Size > s.cfg.MaxFileSize {
		return storedFile{}, newError("LIMIT_EXCEEDED", fmt.Sprintf("ファイルサイズが上限（%dMB）を超えています。", s.cfg.MaxFileSize/(1024*1024)), nil)
	}

	src, err := fh.Open()
	if err != nil {
		return storedFile{}, fmt.Errorf("アップロードファイルのオープンに失敗しました: %w", err)
	}
	defer src.Close()

	storedName := "source" + sanitizeExt(fh.Filename)
	path := ws.inputPath(storedName)
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return storedFile{}, fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	defer dst.Close()

	limit := s.cfg.MaxFileSize
	if limit <= 0 {
		limit = fh.Size
	}
	written, err := io.Copy(dst, io.LimitReader(&ctxReader{ctx: ctx, r: src}, limit+1))
	if err != nil {
		return storedFile{}, fmt.Errorf("一時ファイルへの書き込みに失敗しました: %w", err)
	}
	if written > limit {
		return storedFile{}, newError("LIMIT_EXCEEDED", "ファイルサイズが上限を超えています。", nil)
	}

	return storedFile{
		path:         path,
		originalName: filepath.Base(fh.Filename),
		mediaType:    fh.Header.Get("Content-Type"),
		size:         written,
	}, nil
}

func (s *Service) expireAfter() time.Duration {
	minutes := s.cfg.JobExpireMinutes
	if minutes <= 0 {
		minutes = defaultCleanupMin
	}
	return time.Duration(minutes) * time.Minute
}

func sanitizeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		return ""
	}
	return ext
}

// ctxReader はコンテキストが終了したら読み込みを打ち切ります。
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
