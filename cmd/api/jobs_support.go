package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/yourusername/kagpatra/internal/config"
	"github.com/yourusername/kagpatra/internal/jobs"
	"github.com/yourusername/kagpatra/internal/kiosk"
	"github.com/yourusername/kagpatra/internal/storage"
)

type countJobScheduler struct {
	manager *jobs.Manager
}

func (s *countJobScheduler) Schedule(ctx context.Context, requestID string) error {
	_, err := s.manager.Enqueue(ctx, &jobs.TaskPayload{RequestID: requestID})
	return err
}

type countDiscarder interface {
	Discard(ctx context.Context, requestID string) error
}

// workspaceDiscarder はキューが無い構成で作業ディレクトリだけを削除します。
type workspaceDiscarder struct {
	service *kiosk.Service
}

func (d workspaceDiscarder) Discard(ctx context.Context, requestID string) error {
	return d.service.DiscardCount(requestID)
}

func setupJobs(cfg *config.Config, service *kiosk.Service, logger zerolog.Logger) (*jobs.Manager, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(opt)
	ttlMinutes := cfg.JobExpireMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = 10
	}
	store := jobs.NewStore(redisClient, time.Duration(ttlMinutes)*time.Minute)
	return jobs.NewManager(cfg, service, store, logger.With().Str("component", "jobs").Logger())
}

func countStatusHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.Param("id")
		if strings.TrimSpace(requestID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "requestId を指定してください。",
			})
			return
		}

		record, err := manager.GetRecord(c.Request.Context(), requestID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "判定状況の取得に失敗しました。",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "REQUEST_NOT_FOUND",
				"message": "指定された要求は存在しないか期限切れです。",
			})
			return
		}

		payload := gin.H{
			"requestId": record.RequestID,
			"status":    record.Status,
			"progress": gin.H{
				"percent": record.Progress.Percent,
				"stage":   record.Progress.Stage,
			},
			"stale":     kiosk.IsStale(c, record.RequestID),
			"updatedAt": record.UpdatedAt,
		}
		if record.Result != nil {
			payload["result"] = record.Result
		}
		if record.Error != nil {
			payload["error"] = record.Error
		}

		c.JSON(http.StatusOK, payload)
	}
}

func countDiscardHandler(discarder countDiscarder) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.Param("id")
		if strings.TrimSpace(requestID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "requestId を指定してください。",
			})
			return
		}

		if err := discarder.Discard(c.Request.Context(), requestID); err != nil {
			switch {
			case errors.Is(err, jobs.ErrRecordNotFound):
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "REQUEST_NOT_FOUND",
					"message": "指定された要求は存在しないか期限切れです。",
				})
			case errors.Is(err, storage.ErrInvalidID):
				c.JSON(http.StatusBadRequest, gin.H{
					"code":    "INVALID_INPUT",
					"message": "要求IDの形式が正しくありません。",
				})
			default:
				kiosk.RespondWithError(c, err)
			}
			return
		}

		kiosk.ForgetRequest(c, requestID)
		c.Status(http.StatusNoContent)
	}
}
