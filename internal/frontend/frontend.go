// Package frontend defines the core's outbound contract to the
// (external) UI: push-style notifications the core produces and the
// frontend consumes. The core never reads anything back through this
// package — it is write-only from the core's perspective.
package frontend

// Severity classifies a snackbar message.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// RefreshScope names the part of the frontend's state that should be
// re-fetched.
type RefreshScope string

const (
	ScopePlugins      RefreshScope = "plugins"
	ScopeSettings     RefreshScope = "settings"
	ScopeMatter       RefreshScope = "matter"
	ScopeFabrics      RefreshScope = "fabrics"
	ScopeSessions     RefreshScope = "sessions"
	ScopeReachability RefreshScope = "reachability"
)

// AttributeChange describes one observed Matter attribute value
// change, as forwarded by the attribute subscription fan-out.
type AttributeChange struct {
	Plugin         string      `json:"plugin"`
	Serial         string      `json:"serial"`
	UniqueID       string      `json:"uniqueId"`
	EndpointNumber int         `json:"endpointNumber"`
	EndpointID     uint64      `json:"endpointId"`
	Cluster        string      `json:"cluster"`
	Attribute      string      `json:"attribute"`
	Value          interface{} `json:"value"`
}

// LogLine is one forwarded log record, for frontends that mirror the
// supervisor's log into a UI console.
type LogLine struct {
	Level      string `json:"level"`
	TimeUnixMs int64  `json:"time"`
	LoggerName string `json:"loggerName"`
	Line       string `json:"line"`
}

// Notifier is the outbound contract the core depends on. Every method
// is best-effort: a Notifier must never block the caller indefinitely,
// and delivery failures are the frontend's concern, not the core's —
// the core only attempts delivery.
type Notifier interface {
	SnackbarMessage(text string, timeoutSec int, severity Severity)
	RefreshRequired(scope RefreshScope)
	AttributeChanged(change AttributeChange)
	Log(line LogLine)
	Close() error
}
