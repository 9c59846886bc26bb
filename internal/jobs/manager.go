package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/yourusername/kagpatra/internal/config"
	"github.com/yourusername/kagpatra/internal/kiosk"
)

const (
	taskTypeCount = "pages:count"
	queueName     = "count"
)

// Manager は判定要求の投入と状態管理を担います。
type Manager struct {
	cfg       *config.Config
	client    *asynq.Client
	server    *asynq.Server
	inspector *asynq.Inspector
	mux       *asynq.ServeMux
	store     *Store
	runner    kiosk.CountRunner
	logger    zerolog.Logger
}

// TaskPayload はページ数判定タスクのペイロードです。
type TaskPayload struct {
	RequestID string `json:"requestId"`
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, runner kiosk.CountRunner, store *Store, logger zerolog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if runner == nil {
		return nil, errors.New("runner is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				queueName: 1,
			},
			Logger:   asynqLogger{logger: logger.With().Str("component", "asynq").Logger()},
			LogLevel: asynq.WarnLevel,
		},
	)

	manager := &Manager{
		cfg:       cfg,
		client:    asynq.NewClient(opt),
		server:    server,
		inspector: asynq.NewInspector(opt),
		mux:       asynq.NewServeMux(),
		store:     store,
		runner:    runner,
		logger:    logger,
	}
	manager.mux.HandleFunc(taskTypeCount, manager.handleCountTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Error().Err(err).Msg("asynq server stopped with error")
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	return errors.Join(m.client.Close(), m.inspector.Close())
}

// Enqueue は判定要求をキューに投入します。タスクIDには要求IDを使います。
func (m *Manager) Enqueue(ctx context.Context, payload *TaskPayload) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("payload is nil")
	}
	if payload.RequestID == "" {
		return "", fmt.Errorf("payload.RequestID is required")
	}

	record := &Record{
		RequestID: payload.RequestID,
		Status:    StatusQueued,
		Progress: ProgressInfo{
			Percent: 0,
			Stage:   "queued",
		},
	}
	if err := m.store.Upsert(ctx, record); err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(taskTypeCount, body, asynq.Queue(queueName))
	info, err := m.client.EnqueueContext(ctx, task,
		asynq.TaskID(payload.RequestID),
		asynq.MaxRetry(0),
		asynq.Timeout(m.taskTimeout()),
	)
	if err != nil {
		// 同じIDのタスクが既にあれば記録はそちらが使う
		if !errors.Is(err, asynq.ErrTaskIDConflict) {
			if delErr := m.store.Delete(context.WithoutCancel(ctx), payload.RequestID); delErr != nil {
				m.logger.Warn().Err(delErr).Str("request_id", payload.RequestID).Msg("failed to remove queued record")
			}
		}
		return "", err
	}
	return info.ID, nil
}

// GetRecord は判定要求の記録を取得します。
func (m *Manager) GetRecord(ctx context.Context, requestID string) (*Record, error) {
	return m.store.Get(ctx, requestID)
}

// Discard は判定要求を破棄します。実行中の場合、その結果は保存されません。
func (m *Manager) Discard(ctx context.Context, requestID string) error {
	if err := m.store.MarkDiscarded(ctx, requestID); err != nil {
		return err
	}
	if m.inspector != nil {
		err := m.inspector.DeleteTask(queueName, requestID)
		if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
			// 実行中のタスクは削除できないが、結果は MarkDone で捨てられる
			m.logger.Debug().Err(err).Str("request_id", requestID).Msg("could not delete queued task")
		}
	}
	return m.runner.DiscardCount(requestID)
}

func (m *Manager) handleCountTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if payload.RequestID == "" {
		return fmt.Errorf("missing requestId in payload: %w", asynq.SkipRetry)
	}
	log := m.logger.With().Str("request_id", payload.RequestID).Logger()

	running, err := m.store.MarkRunning(ctx, payload.RequestID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			log.Warn().Msg("count record expired before processing")
			_ = m.runner.DiscardCount(payload.RequestID)
			return nil
		}
		return err
	}
	if !running {
		log.Info().Msg("skipping discarded count request")
		_ = m.runner.DiscardCount(payload.RequestID)
		return nil
	}

	outcome, err := m.runner.RunCount(ctx, payload.RequestID, func(stage string, percent int) {
		if err := m.store.UpdateProgress(ctx, payload.RequestID, ProgressInfo{
			Stage:   stage,
			Percent: percent,
		}); err != nil {
			log.Warn().Err(err).Msg("failed to update progress")
		}
	})
	if err != nil {
		return m.failWithError(ctx, payload.RequestID, err)
	}

	stored, err := m.store.MarkDone(ctx, payload.RequestID, outcome)
	if err != nil {
		return err
	}
	if !stored {
		log.Info().Msg("dropping result of discarded count request")
	}
	return nil
}

func (m *Manager) failWithError(ctx context.Context, requestID string, err error) error {
	info := &ErrorInfo{Code: "INTERNAL_ERROR", Message: "ページ数の判定に失敗しました。"}
	var apiErr *kiosk.Error
	if errors.As(err, &apiErr) {
		info = &ErrorInfo{Code: apiErr.Code, Message: apiErr.Message}
	}
	m.logger.Error().Err(err).Str("request_id", requestID).Msg("count task failed")
	// タイムアウトしたタスクでも失敗は記録する
	return m.store.MarkFailed(context.WithoutCancel(ctx), requestID, info)
}

func (m *Manager) taskTimeout() time.Duration {
	seconds := m.cfg.PageCountTimeoutSeconds
	if seconds <= 0 {
		seconds = 20
	}
	// ファイル読込とマニフェスト処理の分の余裕を持たせる
	return time.Duration(seconds)*time.Second + 30*time.Second
}

// asynqLogger は asynq のログを zerolog に流します。
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
