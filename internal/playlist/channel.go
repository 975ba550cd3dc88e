package playlist

// Channel is one playlist entry. Immutable after parsing; identity for
// matching purposes is URL.
type Channel struct {
	Title   string
	URL     string
	Group   string
	LogoURL string
	TvgID   string
	TvgName string

	// CatchupMode is the raw catchup mode string from the playlist
	// ("append", "default", ...). CatchupSource is the time-shift URL
	// template. When the entry carries no explicit catchup attributes both
	// are filled with defaults and CatchupExplicit is false, preserving the
	// default-enable policy of the original client.
	CatchupMode     string
	CatchupSource   string
	CatchupExplicit bool
}

const (
	// DefaultCatchupMode and DefaultCatchupSource are assigned to entries
	// without explicit catchup metadata. The playseek window convention is
	// understood by most catch-up capable servers in this ecosystem.
	DefaultCatchupMode   = "append"
	DefaultCatchupSource = "?playseek=${(b)yyyyMMddHHmmss}-${(e)yyyyMMddHHmmss}"
)
