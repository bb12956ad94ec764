package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/intakekeeper/internal/flagx"
	"github.com/dmitrijs2005/intakekeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the server configuration. Durations
// accept either "1m" strings or integer nanoseconds. Zero values leave the
// corresponding Config field untouched.
type JsonConfig struct {
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	RedisURL                    string         `json:"redis_url"`
	RateLimit                   float64        `json:"rate_limit"`
	RateBurst                   int            `json:"rate_burst"`
	AuditBufferSize             int            `json:"audit_buffer_size"`
	S3RootUser                  string         `json:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket"`
	S3Region                    string         `json:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint"`
	ArchivePrefix               string         `json:"archive_prefix"`
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// parseJson overlays values from the file named by -c/-config. It panics on
// unreadable or malformed files.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.OrDefault(config.AccessTokenValidityDuration)
	setString(&config.RedisURL, c.RedisURL)
	if c.RateLimit > 0 {
		config.RateLimit = c.RateLimit
	}
	if c.RateBurst > 0 {
		config.RateBurst = c.RateBurst
	}
	if c.AuditBufferSize > 0 {
		config.AuditBufferSize = c.AuditBufferSize
	}
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.ArchivePrefix, c.ArchivePrefix)
}
