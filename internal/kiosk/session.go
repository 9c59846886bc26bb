package kiosk

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	// SessionCookieName はキオスク端末ごとのセッションクッキー名です。
	SessionCookieName = "kagpatra_session"

	sessionMaxAge          = 60 * 60 // 1時間
	sessionLatestRequestID = "latest_count_request"
)

// SessionMaxAgeSeconds はセッションクッキーの有効期間（秒）を返します。
func SessionMaxAgeSeconds() int {
	return sessionMaxAge
}

// rememberLatestRequest は最新のページ数判定要求IDをセッションに記録します。
// これより前の要求の結果は古いものとして扱われます。
func rememberLatestRequest(c *gin.Context, requestID string) {
	session, ok := defaultSession(c)
	if !ok {
		return
	}
	session.Set(sessionLatestRequestID, requestID)
	_ = session.Save()
}

// LatestRequest はセッションに記録された最新の要求IDを返します。
func LatestRequest(c *gin.Context) (string, bool) {
	session, ok := defaultSession(c)
	if !ok {
		return "", false
	}
	id, ok := session.Get(sessionLatestRequestID).(string)
	return id, ok && id != ""
}

// IsStale は requestID がこのクライアントの最新の要求でなければ true を返します。
// セッションが無い場合は判断できないため false を返します。
func IsStale(c *gin.Context, requestID string) bool {
	latest, ok := LatestRequest(c)
	return ok && latest != requestID
}

// ForgetRequest は requestID が最新の要求として記録されていれば消去します。
func ForgetRequest(c *gin.Context, requestID string) {
	session, ok := defaultSession(c)
	if !ok {
		return
	}
	if id, _ := session.Get(sessionLatestRequestID).(string); id != requestID {
		return
	}
	session.Delete(sessionLatestRequestID)
	_ = session.Save()
}

// sessions ミドルウェアが無いルーターでは sessions.Default が panic するため存在を確認する
func defaultSession(c *gin.Context) (sessions.Session, bool) {
	if _, exists := c.Get(sessions.DefaultKey); !exists {
		return nil, false
	}
	return sessions.Default(c), true
}
