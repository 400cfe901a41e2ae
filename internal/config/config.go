// Package config loads server settings.
//
// SOURCES, LOWEST PRIORITY FIRST:
//  1. Defaults (Default)
//  2. A TOML file named by CONFIG_FILE, if set
//  3. Environment variables, including any loaded from a .env file
//
// Environment variables always win, so a deployment can keep a shared
// config file and override one value per host.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// DefaultQualificationThreshold is how many ad views unlock the reward.
//
// TODO: confirm with product. The claim flow and UI use 4 but the old
// admin qualified-users listing used 5.
const DefaultQualificationThreshold = 4

// Duration is a time.Duration that reads "24h" style strings from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is every setting the server reads at start-up.
type Config struct {
	Port int `toml:"port"`

	// DatabaseURL selects Postgres when set; otherwise DBPath is opened
	// with SQLite.
	DBPath      string `toml:"db_path"`
	DatabaseURL string `toml:"database_url"`
	DBMaxConns  int32  `toml:"db_max_conns"`

	JWTSecret    string   `toml:"jwt_secret"`
	SessionTTL   Duration `toml:"session_ttl"`
	CookieSecure bool     `toml:"cookie_secure"`

	GitHubClientID     string `toml:"github_client_id"`
	GitHubClientSecret string `toml:"github_client_secret"`
	GitHubCallbackURL  string `toml:"github_callback_url"`

	QualificationThreshold int      `toml:"qualification_threshold"`
	LeaderboardMinAds      int      `toml:"leaderboard_min_ads"`
	ResetDay               string   `toml:"competition_reset_day"`
	Timezone               string   `toml:"competition_timezone"`
	AdminUsers             []string `toml:"admin_users"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	// Filled in by Validate.
	resetDay time.Weekday
	location *time.Location
	logLevel slog.Level
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Port:                   8080,
		DBPath:                 "data/rewards.db",
		DBMaxConns:             10,
		SessionTTL:             Duration{24 * time.Hour},
		QualificationThreshold: DefaultQualificationThreshold,
		ResetDay:               "sunday",
		Timezone:               "UTC",
		LogLevel:               "info",
		LogFormat:              "text",
	}
}

// Load reads .env, the optional CONFIG_FILE and the environment, then
// validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from lookup. Unset variables leave the field
// alone; set-but-malformed numbers are errors rather than silent defaults.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q is not an integer", key, v)
		}
		*dst = n
		return nil
	}

	str("DB_PATH", &c.DBPath)
	str("DATABASE_URL", &c.DatabaseURL)
	str("JWT_SECRET", &c.JWTSecret)
	str("GITHUB_CLIENT_ID", &c.GitHubClientID)
	str("GITHUB_CLIENT_SECRET", &c.GitHubClientSecret)
	str("GITHUB_CALLBACK_URL", &c.GitHubCallbackURL)
	str("COMPETITION_RESET_DAY", &c.ResetDay)
	str("COMPETITION_TIMEZONE", &c.Timezone)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	if err := integer("PORT", &c.Port); err != nil {
		return err
	}
	if err := integer("QUALIFICATION_THRESHOLD", &c.QualificationThreshold); err != nil {
		return err
	}
	if err := integer("LEADERBOARD_MIN_ADS", &c.LeaderboardMinAds); err != nil {
		return err
	}

	if v, ok := lookup("DB_MAX_CONNS"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("config: DB_MAX_CONNS=%q: must be an integer between 1 and %d", v, math.MaxInt32)
		}
		c.DBMaxConns = int32(n)
	}

	if v, ok := lookup("SESSION_TTL"); ok && v != "" {
		if err := c.SessionTTL.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("config: SESSION_TTL=%q: %w", v, err)
		}
	}
	if v, ok := lookup("COOKIE_SECURE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: COOKIE_SECURE=%q is not a boolean", v)
		}
		c.CookieSecure = b
	}
	if v, ok := lookup("ADMIN_USERS"); ok {
		c.AdminUsers = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseWeekday accepts full or three-letter English day names in any case.
func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, true
		}
	}
	return 0, false
}

// Validate checks every field and resolves the derived values returned by
// ResetWeekday, Location and Level.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.DatabaseURL == "" && c.DBPath == "" {
		return errors.New("config: one of DB_PATH or DATABASE_URL is required")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("config: DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("config: JWT_SECRET must be at least 16 characters")
	}
	if c.SessionTTL.Duration <= 0 {
		return fmt.Errorf("config: SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if (c.GitHubClientID == "") != (c.GitHubClientSecret == "") {
		return errors.New("config: GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together")
	}
	if c.GitHubClientID != "" && c.GitHubCallbackURL == "" {
		c.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", c.Port)
	}
	if c.QualificationThreshold < 1 {
		return fmt.Errorf("config: QUALIFICATION_THRESHOLD must be at least 1, got %d", c.QualificationThreshold)
	}
	if c.LeaderboardMinAds < 0 {
		return fmt.Errorf("config: LEADERBOARD_MIN_ADS must not be negative, got %d", c.LeaderboardMinAds)
	}

	day, ok := parseWeekday(c.ResetDay)
	if !ok {
		return fmt.Errorf("config: unknown COMPETITION_RESET_DAY %q", c.ResetDay)
	}
	c.resetDay = day

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("config: COMPETITION_TIMEZONE %q: %w", c.Timezone, err)
	}
	c.location = loc

	if err := c.logLevel.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("config: LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

func (c *Config) ResetWeekday() time.Weekday { return c.resetDay }

// Location is the time zone weekly windows are computed in. It is UTC
// until Validate has run.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c *Config) Level() slog.Level { return c.logLevel }

// GitHubEnabled reports whether the OAuth routes should be mounted.
func (c *Config) GitHubEnabled() bool { return c.GitHubClientID != "" }
