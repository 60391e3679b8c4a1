package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	LogLevel            string
	DatabaseURL         string
	RedisURL            string
	ClientID            uuid.UUID // PORTAL_CLIENT_ID: only markets of this client are visible
	SupabaseURL         string    // https://<project>.supabase.co; the realtime socket URL is derived from it
	SupabaseAnonKey     string
	RealtimeEnabled     bool
	RealtimeDebounce    time.Duration
	FanoutLimit         int
	FrontendURLEndsWith string
	DevPassword         string
	HealthAdminKey      string
	MapDefaultLat       float64
	MapDefaultLng       float64
	MapDefaultZoom      float64
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("REALTIME_ENABLED", true)
	viper.SetDefault("REALTIME_DEBOUNCE_MS", 150)
	viper.SetDefault("FANOUT_LIMIT", 8)
	// Continental US
	viper.SetDefault("MAP_DEFAULT_LAT", 39.8283)
	viper.SetDefault("MAP_DEFAULT_LNG", -98.5795)
	viper.SetDefault("MAP_DEFAULT_ZOOM", 3.5)

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = viper.GetString("NODE_ENV")
	}
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}

	clientID, err := parseClientID(viper.GetString("PORTAL_CLIENT_ID"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Env:                 env,
		Port:                viper.GetString("PORT"),
		LogLevel:            viper.GetString("LOG_LEVEL"),
		DatabaseURL:         dbURL,
		RedisURL:            viper.GetString("REDIS_URL"),
		ClientID:            clientID,
		SupabaseURL:         strings.TrimRight(viper.GetString("SUPABASE_URL"), "/"),
		SupabaseAnonKey:     viper.GetString("SUPABASE_ANON_KEY"),
		RealtimeEnabled:     viper.GetBool("REALTIME_ENABLED"),
		RealtimeDebounce:    time.Duration(viper.GetInt("REALTIME_DEBOUNCE_MS")) * time.Millisecond,
		FanoutLimit:         viper.GetInt("FANOUT_LIMIT"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         viper.GetString("DEV_PASSWORD"),
		HealthAdminKey:      viper.GetString("HEALTH_ADMIN_KEY"),
		MapDefaultLat:       viper.GetFloat64("MAP_DEFAULT_LAT"),
		MapDefaultLng:       viper.GetFloat64("MAP_DEFAULT_LNG"),
		MapDefaultZoom:      viper.GetFloat64("MAP_DEFAULT_ZOOM"),
	}, nil
}

func parseClientID(s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, fmt.Errorf("config: PORTAL_CLIENT_ID is not set")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("config: PORTAL_CLIENT_ID: %w", err)
	}
	return id, nil
}

// RealtimeURL is the Supabase Realtime websocket endpoint, or "" when realtime is off.
func (c *Config) RealtimeURL() string {
	if !c.RealtimeEnabled || c.SupabaseURL == "" || c.SupabaseAnonKey == "" {
		return ""
	}
	base := c.SupabaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/realtime/v1/websocket"
}
