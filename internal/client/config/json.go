package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/intakekeeper/internal/flagx"
	"github.com/dmitrijs2005/intakekeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Absent keys
// leave the corresponding Config field untouched.
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	AccessToken         string         `json:"access_token"`
	LocalDBPath         string         `json:"local_db_path"`
	DraftKey            string         `json:"draft_key"`
	DraftID             string         `json:"draft_id"`
	Debounce            timex.Duration `json:"debounce"`
	BackupInterval      timex.Duration `json:"backup_interval"`
	RetryDelay          timex.Duration `json:"retry_delay"`
	Encrypt             *bool          `json:"encrypt"`
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// parseJson overlays Config with values loaded from the file named by -c or
// -config. It panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	cfg.OnlineCheckInterval = jc.OnlineCheckInterval.OrDefault(cfg.OnlineCheckInterval)
	setString(&cfg.AccessToken, jc.AccessToken)
	setString(&cfg.LocalDBPath, jc.LocalDBPath)
	setString(&cfg.DraftKey, jc.DraftKey)
	setString(&cfg.DraftID, jc.DraftID)
	cfg.Debounce = jc.Debounce.OrDefault(cfg.Debounce)
	cfg.BackupInterval = jc.BackupInterval.OrDefault(cfg.BackupInterval)
	cfg.RetryDelay = jc.RetryDelay.OrDefault(cfg.RetryDelay)
	if jc.Encrypt != nil {
		cfg.Encrypt = *jc.Encrypt
	}
}
