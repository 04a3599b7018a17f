package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/sealvault/internal/flagx"
)

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-k string   Redis address for the purge lock
//	-q string   SQS queue URL for erasure events
//	-i int      purge interval, minutes
//	-n int      purge batch size
//	-o int      recovery token validity, minutes
//	-w int      default trash retention, days
//	-l int      recovery attempts per minute per email
//
// Duration flags are accepted as integers in minutes and only overwrite the
// current value when given, so finer JSON values survive.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-d", "-s", "-t", "-r", "-u", "-p", "-b", "-g", "-e",
		"-k", "-q", "-i", "-n", "-o", "-w", "-l",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidity := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshTokenValidity := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.RedisAddr, "k", config.RedisAddr, "redis address")
	fs.StringVar(&config.SQSQueueURL, "q", config.SQSQueueURL, "SQS queue URL")

	purgeInterval := fs.Int("i", int(config.PurgeInterval.Minutes()), "purge interval (in minutes)")
	fs.IntVar(&config.PurgeBatchSize, "n", config.PurgeBatchSize, "purge batch size")
	recoveryTokenTTL := fs.Int("o", int(config.RecoveryTokenTTL.Minutes()), "recovery token validity (in minutes)")
	fs.IntVar(&config.DefaultRetentionDays, "w", config.DefaultRetentionDays, "default trash retention (in days)")
	fs.IntVar(&config.RecoveryAttemptsPerMinute, "l", config.RecoveryAttemptsPerMinute, "recovery attempts per minute")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	minutes := map[string]struct {
		dst *time.Duration
		val *int
	}{
		"t": {&config.AccessTokenValidityDuration, accessTokenValidity},
		"r": {&config.RefreshTokenValidityDuration, refreshTokenValidity},
		"i": {&config.PurgeInterval, purgeInterval},
		"o": {&config.RecoveryTokenTTL, recoveryTokenTTL},
	}
	fs.Visit(func(f *flag.Flag) {
		if m, ok := minutes[f.Name]; ok {
			*m.dst = time.Duration(*m.val) * time.Minute
		}
	})
}
