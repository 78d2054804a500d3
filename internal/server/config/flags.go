package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
)

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN, or "memory"
//	-s string   JWT HMAC secret key
//	-j string   JWT signing algorithm (HS256, HS384, HS512)
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-l int      clock skew leeway, seconds
//	-m int      minimum password length
//	-x          revoke all sessions on refresh token reuse
//	-R string   Redis address for the login throttle
//	-n int      failed logins allowed per cooldown window
//	-w int      login cooldown window, minutes
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket for the security event archive
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-L string   log level
//
// os.Args is first filtered with flagx.FilterArgs so that -c/-config and
// unknown flags do not reach the FlagSet.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-d", "-s", "-j", "-t", "-r", "-l", "-m", "-x", "-R", "-n", "-w",
		"-u", "-p", "-b", "-g", "-e", "-L",
	}, "-x")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.SigningAlgorithm, "j", config.SigningAlgorithm, "jwt signing algorithm")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")
	clockSkewLeeway := fs.Int("l", int(config.ClockSkewLeeway.Seconds()), "clock_skew_leeway (in seconds)")

	fs.IntVar(&config.MinPasswordLength, "m", config.MinPasswordLength, "minimum password length")
	fs.BoolVar(&config.RevokeAllOnReuse, "x", config.RevokeAllOnReuse, "revoke all sessions on refresh token reuse")

	fs.StringVar(&config.RedisAddr, "R", config.RedisAddr, "redis address for login throttling")
	fs.IntVar(&config.MaxLoginAttempts, "n", config.MaxLoginAttempts, "failed logins allowed per window")
	loginCooldown := fs.Int("w", int(config.LoginCooldownDuration.Minutes()), "login_cooldown_duration (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 audit bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.LogLevel, "L", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// Durations are only replaced when their flag was given, so a "30s" from
	// the JSON file is not truncated to whole minutes.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
		case "r":
			config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
		case "l":
			config.ClockSkewLeeway = time.Duration(*clockSkewLeeway) * time.Second
		case "w":
			config.LoginCooldownDuration = time.Duration(*loginCooldown) * time.Minute
		}
	})
}
