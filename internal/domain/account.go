package domain

// TransportType identifies the remote listing backend
type TransportType string

const (
	TransportLocal  TransportType = "local"
	TransportGDrive TransportType = "gdrive"
	TransportS3     TransportType = "s3"
)

// IsValid checks if the transport type is a known value
func (t TransportType) IsValid() bool {
	switch t {
	case TransportLocal, TransportGDrive, TransportS3:
		return true
	default:
		return false
	}
}

// Transport configures how an account's remote is listed
type Transport struct {
	// Type is the backend kind
	Type TransportType `mapstructure:"type" validate:"required,oneof=local gdrive s3"`

	// Root is the backend root (local directory, Drive folder, or bucket/prefix)
	Root string `mapstructure:"root" validate:"required"`

	// Options holds backend specific settings (credentials, region, endpoint)
	Options map[string]string `mapstructure:"options"`
}

// Account describes one remote account served by the enumeration core
type Account struct {
	// Name is the unique account key
	Name string `mapstructure:"name" validate:"required"`

	// Home is the remote path the root container maps to
	Home string `mapstructure:"home"`

	Transport Transport `mapstructure:"transport"`

	// Pagination enables offset/limit page listing when the remote supports it
	Pagination bool `mapstructure:"pagination"`

	// PageSize is the number of items per enumeration page
	PageSize int `mapstructure:"page_size" validate:"gte=0,lte=10000"`

	// Session is the background extension session identifier.
	// A random one is generated when empty.
	Session string `mapstructure:"session"`

	// Watch lists container paths the background watcher reconciles
	Watch []string `mapstructure:"watch"`
}

// DefaultPageSize is used when an account leaves page_size unset
const DefaultPageSize = 100

// EffectivePageSize returns the configured page size or the default
func (a Account) EffectivePageSize() int {
	if a.PageSize <= 0 {
		return DefaultPageSize
	}
	return a.PageSize
}

// HomePath returns the normalized home path
func (a Account) HomePath() string {
	return CleanPath(a.Home)
}
