package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/intakekeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
// Durations are given in whole seconds.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-i", "-t", "-f", "-k", "-n", "-w", "-b", "-r"}, "-encrypt")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.AccessToken, "t", cfg.AccessToken, "access token")
	fs.StringVar(&cfg.LocalDBPath, "f", cfg.LocalDBPath, "local database file")
	fs.StringVar(&cfg.DraftKey, "k", cfg.DraftKey, "draft key")
	fs.StringVar(&cfg.DraftID, "n", cfg.DraftID, "server draft id")
	debounce := fs.Int("w", int(cfg.Debounce.Seconds()), "autosave debounce (in seconds)")
	backup := fs.Int("b", int(cfg.BackupInterval.Seconds()), "safety backup interval (in seconds)")
	retryDelay := fs.Int("r", int(cfg.RetryDelay.Seconds()), "retry delay (in seconds)")
	fs.BoolVar(&cfg.Encrypt, "encrypt", cfg.Encrypt, "encrypt local cache")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	cfg.Debounce = time.Duration(*debounce) * time.Second
	cfg.BackupInterval = time.Duration(*backup) * time.Second
	cfg.RetryDelay = time.Duration(*retryDelay) * time.Second
}
