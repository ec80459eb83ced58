package config

import "time"

const (
	DefaultLogLevel = "info"

	DefaultDBPath = "slackarchive.db"

	DefaultHTTPAddr            = ":8080"
	DefaultHTTPReadTimeout     = 15 * time.Second
	DefaultHTTPWriteTimeout    = 30 * time.Second
	DefaultHTTPShutdownTimeout = 10 * time.Second

	DefaultSlackMaxClockSkew = 5 * time.Minute

	DefaultImportWorkers = 4
)

var defaults = map[string]any{
	"log.level": DefaultLogLevel,
	"log.json":  false,

	"database.path": DefaultDBPath,

	"http.addr":             DefaultHTTPAddr,
	"http.read_timeout":     DefaultHTTPReadTimeout,
	"http.write_timeout":    DefaultHTTPWriteTimeout,
	"http.shutdown_timeout": DefaultHTTPShutdownTimeout,

	"slack.events_enabled": true,
	"slack.signing_secret": "",
	"slack.max_clock_skew": DefaultSlackMaxClockSkew,

	"telegram.enabled": false,
	"telegram.token":   "",

	"import.workers": DefaultImportWorkers,

	"scheduler.tasks": map[string]any{
		"repaginate": map[string]any{
			"enabled":  true,
			"schedule": "0 */15 * * * *",
		},
		"sql_maintenance": map[string]any{
			"enabled":  true,
			"schedule": "0 30 3 * * *",
		},
	},
}
