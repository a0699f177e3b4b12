package models

const (
	EntryStatusPending = "pending"
	EntryStatusFailed  = "failed"
)

const (
	TypeSocialPost    = "social-post"
	TypeDirectMessage = "direct-message"
	TypeDJTip         = "dj-tip"
)

const (
	// MaxRetries потолок автоматических попыток доставки одной записи
	MaxRetries = 3

	// DefaultSyncBatchSize сколько записей читается за один проход
	DefaultSyncBatchSize = 100

	// DefaultProbeIntervalSeconds интервал проверки доступности бэкенда
	DefaultProbeIntervalSeconds = 15

	// RateLimitRequests лимиты API по умолчанию
	RateLimitRequests = 30
	RateLimitWindow   = 60
)

const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
)

// EntryTypes перечисляет закрытое множество типов записей.
var EntryTypes = []string{TypeSocialPost, TypeDirectMessage, TypeDJTip}
