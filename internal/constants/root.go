package constants

import "time"

// Backend identifies where habit rows are persisted.
type Backend string

// SinkType identifies how a fired reminder is delivered to the user.
type SinkType string

const (
	AppName            = "habitual"
	DefaultKeyringUser = "database-connection"
	SessionKeyringUser = "auth-session"
	DefaultConfigDir   = "~/.config/habitual"
	DefaultDBName      = "habitual.db"
	ConfigFileName     = "config.yaml"
	EnvPrefix          = "HABITUAL_"
	Version            = "v0.1.0"

	// DefaultTimezone is the zone every reminder is computed and displayed in
	DefaultTimezone = "America/Bogota"

	// Table and channel names shared by every backend
	HabitsTable   = "habits"
	TriggersTable = "triggers"
	NotifyChannel = "habits_changes"

	// Backends
	BackendSupabase Backend = "supabase"
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"

	// Reminder sinks
	SinkTray   SinkType = "tray"
	SinkStdout SinkType = "stdout"

	// Notify constants
	NotifyMaxRetries       = 3
	NotifyRetryDelay       = 100 * time.Millisecond
	NotifierLockfileName   = "habitual-notifier.lock"
	NotificationDurationMs = 5000
	TrayAppIdentifier      = "com.julianstephens.habitual"
	TrayExecutablePrefix   = "habitual-tray"

	ReminderTitleFormat = "Time for: %s!"
	ReminderBody        = "Don't forget to complete this habit."

	// Remote call policy
	DefaultRemoteTimeout = 15 * time.Second
	DefaultRateLimit     = 10.0
	DefaultRateBurst     = 5
	RealtimeHeartbeat    = 30 * time.Second
	RealtimeHandshake    = 10 * time.Second

	DefaultMetricsAddr = "127.0.0.1:9464"
)
