package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/sealvault/internal/flagx"
	"github.com/dmitrijs2005/sealvault/internal/timex"
)

// JsonConfig is the on-disk shape of the server config file. Durations accept
// both "15m" strings and integer nanoseconds. Fields absent from the file keep
// the values already present in Config.
type JsonConfig struct {
	EndpointAddrGRPC             *string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  *string         `json:"database_dsn"`
	SecretKey                    *string         `json:"secret_key"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	S3RootUser                   *string         `json:"s3_root_user"`
	S3RootPassword               *string         `json:"s3_root_password"`
	S3Bucket                     *string         `json:"s3_bucket"`
	S3Region                     *string         `json:"s3_region"`
	S3BaseEndpoint               *string         `json:"s3_base_endpoint"`
	RedisAddr                    *string         `json:"redis_addr"`
	SQSQueueURL                  *string         `json:"sqs_queue_url"`
	PurgeInterval                *timex.Duration `json:"purge_interval"`
	PurgeBatchSize               *int            `json:"purge_batch_size"`
	RecoveryTokenTTL             *timex.Duration `json:"recovery_token_ttl"`
	DefaultRetentionDays         *int            `json:"default_retention_days"`
	RecoveryAttemptsPerMinute    *int            `json:"recovery_attempts_per_minute"`
}

// parseJson loads the file named by -c/-config (or $SEALVAULT_CONFIG) into
// config. With no file configured it does nothing. An unreadable or invalid
// file panics, matching flag parsing.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	if err := applyJSONFile(config, jsonConfigFile); err != nil {
		panic(err)
	}
}

// LoadFile returns the defaults overlaid with the JSON file at path. An empty
// path yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if path == "" {
		return cfg, nil
	}
	if err := applyJSONFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyJSONFile(config *Config, path string) error {
	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.SQSQueueURL, c.SQSQueueURL)

	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.PurgeInterval != nil {
		config.PurgeInterval = c.PurgeInterval.Duration
	}
	if c.RecoveryTokenTTL != nil {
		config.RecoveryTokenTTL = c.RecoveryTokenTTL.Duration
	}
	if c.PurgeBatchSize != nil {
		config.PurgeBatchSize = *c.PurgeBatchSize
	}
	if c.DefaultRetentionDays != nil {
		config.DefaultRetentionDays = *c.DefaultRetentionDays
	}
	if c.RecoveryAttemptsPerMinute != nil {
		config.RecoveryAttemptsPerMinute = *c.RecoveryAttemptsPerMinute
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
