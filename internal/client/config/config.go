package config

import "time"

// Config holds runtime settings for the intake CLI.
//
// Fields:
//   - ServerEndpointAddr: host:port of the backend gRPC endpoint.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - AccessToken: bearer token sent with every call except Ping.
//   - LocalDBPath: SQLite file holding snapshots, backups and metadata.
//   - DraftKey: local key of the editing session (one snapshot per key).
//   - DraftID: server draft to open; empty means the actor's latest draft.
//   - Debounce: quiet period after the last edit before an autosave.
//   - BackupInterval: period of safety backups.
//   - RetryDelay: delay before retrying a save that failed transiently.
//   - Encrypt: seal local payloads with a passphrase-derived key.
type Config struct {
	ServerEndpointAddr  string
	OnlineCheckInterval time.Duration
	AccessToken         string
	LocalDBPath         string
	DraftKey            string
	DraftID             string
	Debounce            time.Duration
	BackupInterval      time.Duration
	RetryDelay          time.Duration
	Encrypt             bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.LocalDBPath = "intake.db"
	c.DraftKey = "intake-draft"
	c.Debounce = 2 * time.Second
	c.BackupInterval = 5 * time.Minute
	c.RetryDelay = 5 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
