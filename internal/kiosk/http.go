package kiosk

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/kagpatra/internal/pricing"
)

// CountRunner は保存済みのページ数判定要求を実行できるサービスが実装します。
type CountRunner interface {
	RunCount(ctx context.Context, requestID string, reporter ProgressReporter) (*CountOutcome, error)
	DiscardCount(requestID string) error
}

// CountService はページ数判定要求の準備と実行を提供します。
type CountService interface {
	CountRunner
	PrepareCount(ctx context.Context, file *multipart.FileHeader) (*CountManifest, error)
}

// EstimateService は見積もりと印刷設定の転送を提供します。
type EstimateService interface {
	Estimate(p pricing.Preferences) pricing.Estimate
	SubmitPreferences(ctx context.Context, jobID string, p pricing.Preferences, direction string) (pricing.Estimate, bool, error)
	Currency() string
	MaxCopies() int
}

// JobScheduler は判定要求を非同期キューに投入するためのインターフェースです。
type JobScheduler interface {
	Schedule(ctx context.Context, requestID string) error
}

// HandlerOptions は同期/非同期切り替えのための設定です。
type HandlerOptions struct {
	Scheduler           JobScheduler
	AsyncThresholdBytes int64
}

// CountHandler は POST /api/pages/count のハンドラーを返します。
func CountHandler(svc CountService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "multipart/form-data でファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		file, err := extractSingleFile(form)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": err.Error(),
			})
			return
		}

		manifest, err := svc.PrepareCount(c.Request.Context(), file)
		if err != nil {
			respondWithError(c, err)
			return
		}
		rememberLatestRequest(c, manifest.RequestID)

		if shouldProcessAsync(manifest, opts) {
			if err := opts.Scheduler.Schedule(c.Request.Context(), manifest.RequestID); err != nil {
				if cleanupErr := svc.DiscardCount(manifest.RequestID); cleanupErr != nil {
					err = fmt.Errorf("%w (cleanup failed: %v)", err, cleanupErr)
				}
				respondWithError(c, err)
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"requestId": manifest.RequestID})
			return
		}

		outcome, err := svc.RunCount(c.Request.Context(), manifest.RequestID, nil)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, outcome)
	}
}

type estimateRequest struct {
	PageCount     int    `json:"pageCount"`
	ColorMode     string `json:"colorMode"`
	Copies        int    `json:"copies"`
	Duplex        bool   `json:"duplex"`
	PageSelection string `json:"pageSelection"`
	CustomRange   string `json:"customRange"`
}

func (r estimateRequest) preferences(maxCopies int) (pricing.Preferences, error) {
	if r.PageCount < 1 {
		return pricing.Preferences{}, errors.New("pageCount は1以上で指定してください。")
	}
	if maxCopies > 0 {
		if r.Copies < 1 || r.Copies > maxCopies {
			return pricing.Preferences{}, fmt.Errorf("copies は1から%dの範囲で指定してください。", maxCopies)
		}
	} else if r.Copies < 1 {
		return pricing.Preferences{}, errors.New("copies は1以上で指定してください。")
	}
	mode := pricing.Monochrome
	if strings.TrimSpace(r.ColorMode) != "" {
		parsed, ok := pricing.ParseColorMode(r.ColorMode)
		if !ok {
			return pricing.Preferences{}, errors.New("colorMode は monochrome または color を指定してください。")
		}
		mode = parsed
	}
	selection, ok := pricing.ParseSelection(r.PageSelection)
	if !ok {
		return pricing.Preferences{}, errors.New("pageSelection は all / odd / even / custom のいずれかを指定してください。")
	}
	return pricing.Preferences{
		PageCount:   r.PageCount,
		ColorMode:   mode,
		Copies:      r.Copies,
		Duplex:      r.Duplex,
		Selection:   selection,
		CustomRange: strings.TrimSpace(r.CustomRange),
	}, nil
}

func estimatePayload(est pricing.Estimate, currency string) gin.H {
	amount, _ := est.Amount.Float64()
	return gin.H{
		"amount":         amount,
		"amountText":     est.Amount.StringFixed(2),
		"currency":       currency,
		"effectivePages": est.EffectivePages,
		"copies":         est.Copies,
		"pageRanges":     est.PageRanges,
	}
}

// EstimateHandler は POST /api/estimate のハンドラーを返します。
func EstimateHandler(svc EstimateService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req estimateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "印刷設定を JSON で送信してください。",
			})
			return
		}

		prefs, err := req.preferences(svc.MaxCopies())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, estimatePayload(svc.Estimate(prefs), svc.Currency()))
	}
}

type preferencesRequest struct {
	JobID       string          `json:"jobId"`
	Preferences estimateRequest `json:"preferences"`
	Direction   string          `json:"direction"`
}

// PreferencesHandler は POST /api/preferences のハンドラーを返します。
func PreferencesHandler(svc EstimateService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req preferencesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "印刷設定を JSON で送信してください。",
			})
			return
		}

		prefs, err := req.Preferences.preferences(svc.MaxCopies())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": err.Error(),
			})
			return
		}

		est, forwarded, err := svc.SubmitPreferences(c.Request.Context(), req.JobID, prefs, req.Direction)
		if err != nil {
			respondWithError(c, err)
			return
		}

		payload := estimatePayload(est, svc.Currency())
		payload["forwarded"] = forwarded
		c.JSON(http.StatusOK, payload)
	}
}

func shouldProcessAsync(manifest *CountManifest, opts HandlerOptions) bool {
	if manifest == nil || opts.Scheduler == nil {
		return false
	}
	return opts.AsyncThresholdBytes > 0 && manifest.File.Size > opts.AsyncThresholdBytes
}

// RespondWithError はサービスのエラーを HTTP レスポンスに変換します。
func RespondWithError(c *gin.Context, err error) {
	respondWithError(c, err)
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		c.JSON(statusForCode(apiErr.Code), gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

func statusForCode(code string) int {
	switch code {
	case "LIMIT_EXCEEDED":
		return http.StatusRequestEntityTooLarge
	case "REQUEST_NOT_FOUND":
		return http.StatusNotFound
	case "BACKEND_UNAVAILABLE":
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func extractSingleFile(form *multipart.Form) (*multipart.FileHeader, error) {
	if form == nil {
		return nil, errors.New("ファイルを選択してください。")
	}
	for _, key := range []string{"file", "file[]", "files", "files[]"} {
		if files := form.File[key]; len(files) > 0 {
			return files[0], nil
		}
	}
	return nil, errors.New("ファイルを選択してください。")
}
