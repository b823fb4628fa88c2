package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig
	Stream        StreamConfig
	MQTT          MQTTConfig
	Session       SessionConfig
	Backend       BackendConfig
	Database      DatabaseConfig
	Notifications NotificationConfig
	Alert         AlertConfig
	Map           MapConfig
	JWT           JWTConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
}

type ServerConfig struct {
	Port        string
	Host        string
	Environment string `validate:"omitempty,oneof=development production test"`
	// LogLevel overrides the environment's default level when set.
	LogLevel string `validate:"omitempty,oneof=debug info warn error"`
}

type StreamConfig struct {
	URL              string        `validate:"required"`
	Transport        string        `validate:"oneof=websocket mqtt"`
	HandshakeTimeout time.Duration `validate:"gte=0"`
	ReadLimit        int64         `validate:"gte=0"`
	BufferSize       int           `validate:"gte=0"`
}

type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte `validate:"lte=2"`
}

type SessionConfig struct {
	// File holds the base64 encoded credential blob; Value takes precedence when set.
	File  string
	Value string
}

type BackendConfig struct {
	BaseURL  string
	PageSize int           `validate:"gte=0"`
	Timeout  time.Duration `validate:"gte=0"`
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type NotificationConfig struct {
	Username     string
	AllowedTypes []string
	FeedCapacity int `validate:"gte=0"`
}

type AlertConfig struct {
	AutoCloseTimeout time.Duration `validate:"gt=0"`
	BlinkInterval    time.Duration `validate:"gt=0"`
}

type MapConfig struct {
	DefaultLatitude  float64 `validate:"gte=-90,lte=90"`
	DefaultLongitude float64 `validate:"gte=-180,lte=180"`
	DefaultZoom      float64 `validate:"gte=0"`
	FocusZoom        float64 `validate:"gte=0"`
	HeadingOffset    float64
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	GeneralRPS   float64 // Requests per second for general endpoints
	GeneralBurst int     // Burst size for general endpoints
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("STREAM_URL", "ws://localhost:8082/api/socket")
	v.SetDefault("STREAM_TRANSPORT", "websocket")
	v.SetDefault("STREAM_HANDSHAKE_TIMEOUT", 10*time.Second)
	v.SetDefault("STREAM_READ_LIMIT", 1<<20)
	v.SetDefault("STREAM_BUFFER_SIZE", 256)
	v.SetDefault("MQTT_CLIENT_ID", "fleetwatch")
	v.SetDefault("MQTT_TOPIC", "fleet/stream")
	v.SetDefault("MQTT_QOS", 1)
	v.SetDefault("BACKEND_PAGE_SIZE", 100)
	v.SetDefault("BACKEND_TIMEOUT", 15*time.Second)
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("ALERT_AUTO_CLOSE_TIMEOUT", 10*time.Second)
	v.SetDefault("ALERT_BLINK_INTERVAL", 500*time.Millisecond)
	v.SetDefault("MAP_DEFAULT_LATITUDE", 0.0)
	v.SetDefault("MAP_DEFAULT_LONGITUDE", 0.0)
	v.SetDefault("MAP_DEFAULT_ZOOM", 5.0)
	v.SetDefault("MAP_FOCUS_ZOOM", 16.0)
	v.SetDefault("MAP_HEADING_OFFSET", -90.0)
	v.SetDefault("RATE_LIMIT_GENERAL_RPS", 20.0)
	v.SetDefault("RATE_LIMIT_GENERAL_BURST", 40)
	v.SetDefault("CORS_ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("CORS_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Authorization"})
}

// Load reads the .env file (when present) and the process environment.
func Load() (*Config, error) {
	v := viper.New()
	return load(v, ".env")
}

// LoadFile is Load with an explicit dotenv path.
func LoadFile(path string) (*Config, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AddConfigPath(".")
	if homeDir, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(homeDir)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Printf("Warning: config file not found: %v. Falling back to environment variables only.", err)
	}

	config := &Config{
		Server: ServerConfig{
			Port:        v.GetString("SERVER_PORT"),
			Host:        v.GetString("SERVER_HOST"),
			Environment: v.GetString("ENVIRONMENT"),
			LogLevel:    v.GetString("LOG_LEVEL"),
		},
		Stream: StreamConfig{
			URL:              v.GetString("STREAM_URL"),
			Transport:        v.GetString("STREAM_TRANSPORT"),
			HandshakeTimeout: v.GetDuration("STREAM_HANDSHAKE_TIMEOUT"),
			ReadLimit:        v.GetInt64("STREAM_READ_LIMIT"),
			BufferSize:       v.GetInt("STREAM_BUFFER_SIZE"),
		},
		MQTT: MQTTConfig{
			Broker:   v.GetString("MQTT_BROKER"),
			ClientID: v.GetString("MQTT_CLIENT_ID"),
			Topic:    v.GetString("MQTT_TOPIC"),
			QoS:      byte(v.GetUint("MQTT_QOS")),
		},
		Session: SessionConfig{
			File:  v.GetString("FLEET_SESSION_FILE"),
			Value: v.GetString("FLEET_SESSION"),
		},
		Backend: BackendConfig{
			BaseURL:  v.GetString("BACKEND_BASE_URL"),
			PageSize: v.GetInt("BACKEND_PAGE_SIZE"),
			Timeout:  v.GetDuration("BACKEND_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Notifications: NotificationConfig{
			Username:     v.GetString("NOTIFICATIONS_USERNAME"),
			AllowedTypes: splitList(v.GetStringSlice("NOTIFICATIONS_ALLOWED_TYPES")),
			FeedCapacity: v.GetInt("NOTIFICATIONS_FEED_CAPACITY"),
		},
		Alert: AlertConfig{
			AutoCloseTimeout: v.GetDuration("ALERT_AUTO_CLOSE_TIMEOUT"),
			BlinkInterval:    v.GetDuration("ALERT_BLINK_INTERVAL"),
		},
		Map: MapConfig{
			DefaultLatitude:  v.GetFloat64("MAP_DEFAULT_LATITUDE"),
			DefaultLongitude: v.GetFloat64("MAP_DEFAULT_LONGITUDE"),
			DefaultZoom:      v.GetFloat64("MAP_DEFAULT_ZOOM"),
			FocusZoom:        v.GetFloat64("MAP_FOCUS_ZOOM"),
			HeadingOffset:    v.GetFloat64("MAP_HEADING_OFFSET"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
		},
		RateLimit: RateLimitConfig{
			GeneralRPS:   v.GetFloat64("RATE_LIMIT_GENERAL_RPS"),
			GeneralBurst: v.GetInt("RATE_LIMIT_GENERAL_BURST"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   v.GetStringSlice("CORS_ALLOWED_ORIGINS"),
			AllowedMethods:   v.GetStringSlice("CORS_ALLOWED_METHODS"),
			AllowedHeaders:   v.GetStringSlice("CORS_ALLOWED_HEADERS"),
			ExposedHeaders:   v.GetStringSlice("CORS_EXPOSED_HEADERS"),
			AllowCredentials: v.GetBool("CORS_ALLOW_CREDENTIALS"),
			MaxAge:           v.GetInt("CORS_MAX_AGE"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// splitList accepts both space and comma separated environment values.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

var validate = validator.New()

// Validate checks the struct tags on every section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Stream.Transport == "mqtt" && c.MQTT.Broker == "" {
		return errors.New("invalid configuration: MQTT_BROKER is required for the mqtt transport")
	}
	return nil
}

// HasDatabase reports whether the optional allow-list database is configured.
func (c *DatabaseConfig) HasDatabase() bool {
	return c.Host != "" && c.DBName != ""
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
