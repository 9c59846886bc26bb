package kiosk

// ProgressReporter は進捗更新用コールバックです。
type ProgressReporter func(stage string, percent int)

// 進捗の段階（読込20% / 解析60% / 完了100%）
const (
	StageLoad      = "load"
	StageParse     = "parse"
	StageCompleted = "completed"
)

func reportProgress(cb ProgressReporter, stage string, percent int) {
	if cb == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	cb(stage, percent)
}
