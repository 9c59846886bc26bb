package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/kagpatra/internal/kiosk"
)

const (
	recordKeyPrefix = "pages:count:"
	maxWatchRetries = 5
)

// ErrRecordNotFound は判定要求の記録が存在しない（または期限切れ）ことを表します。
var ErrRecordNotFound = errors.New("jobs: record not found")

// errSkipWrite は mutate が更新不要と判断したことを表します。
var errSkipWrite = errors.New("skip write")

// Store は判定要求の状態を Redis に保存します。
type Store struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewStore は Store を作成します。
func NewStore(rdb redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get は記録を取得します。存在しない場合は nil を返します。
func (s *Store) Get(ctx context.Context, requestID string) (*Record, error) {
	if requestID == "" {
		return nil, fmt.Errorf("requestID is required")
	}
	data, err := s.rdb.Get(ctx, recordKey(requestID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert は記録を保存します（存在しない場合は作成）。
func (s *Store) Upsert(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.ExpiresAt.IsZero() && s.ttl > 0 {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, recordKey(record.RequestID), payload, s.ttl).Err()
}

// Delete は記録を削除します。存在しない場合も成功扱いです。
func (s *Store) Delete(ctx context.Context, requestID string) error {
	if requestID == "" {
		return fmt.Errorf("requestID is required")
	}
	return s.rdb.Del(ctx, recordKey(requestID)).Err()
}

// MarkRunning は実行開始を記録します。破棄済みの場合は false を返します。
func (s *Store) MarkRunning(ctx context.Context, requestID string) (bool, error) {
	return s.updatePartial(ctx, requestID, func(record *Record) error {
		if record.Status == StatusDiscarded {
			return errSkipWrite
		}
		record.Status = StatusRunning
		record.Progress = ProgressInfo{Percent: 0, Stage: "running"}
		return nil
	})
}

// UpdateProgress は進捗を更新します。終了済みの記録は変更しません。
func (s *Store) UpdateProgress(ctx context.Context, requestID string, progress ProgressInfo) error {
	_, err := s.updatePartial(ctx, requestID, func(record *Record) error {
		if record.Status.Terminal() {
			return errSkipWrite
		}
		record.Progress = progress
		return nil
	})
	return err
}

// MarkDone は判定結果を保存します。破棄済みの要求の結果は捨て、false を返します。
func (s *Store) MarkDone(ctx context.Context, requestID string, outcome *kiosk.CountOutcome) (bool, error) {
	return s.updatePartial(ctx, requestID, func(record *Record) error {
		if record.Status == StatusDiscarded {
			return errSkipWrite
		}
		record.Status = StatusSucceeded
		record.Progress = ProgressInfo{Percent: 100, Stage: "completed"}
		record.Result = outcome
		record.Error = nil
		return nil
	})
}

// MarkFailed は判定失敗を記録します。破棄済みの記録は変更しません。
func (s *Store) MarkFailed(ctx context.Context, requestID string, errInfo *ErrorInfo) error {
	_, err := s.updatePartial(ctx, requestID, func(record *Record) error {
		if record.Status == StatusDiscarded {
			return errSkipWrite
		}
		record.Status = StatusFailed
		if errInfo != nil {
			record.Error = errInfo
		}
		return nil
	})
	return err
}

// MarkDiscarded は要求を破棄済みにし、保存済みの結果を消します。
func (s *Store) MarkDiscarded(ctx context.Context, requestID string) error {
	_, err := s.updatePartial(ctx, requestID, func(record *Record) error {
		record.Status = StatusDiscarded
		record.Result = nil
		return nil
	})
	return err
}

// updatePartial は WATCH で楽観ロックを取りながら記録を書き換えます。
// mutate が errSkipWrite を返した場合は書き込まず false を返します。
func (s *Store) updatePartial(ctx context.Context, requestID string, mutate func(*Record) error) (bool, error) {
	key := recordKey(requestID)
	applied := false

	txf := func(tx *redis.Tx) error {
		applied = false
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %s", ErrRecordNotFound, requestID)
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		if err := mutate(&record); err != nil {
			return err
		}
		record.UpdatedAt = time.Now().UTC()
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			// 期限は Upsert 時の ExpiresAt に固定する
			pipe.Set(ctx, key, payload, redis.KeepTTL)
			return nil
		})
		if err == nil {
			applied = true
		}
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return applied, nil
		case errors.Is(err, errSkipWrite):
			return false, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return false, err
		}
	}
	return false, fmt.Errorf("update %s: too many concurrent writes", requestID)
}

func recordKey(id string) string {
	return recordKeyPrefix + id
}
