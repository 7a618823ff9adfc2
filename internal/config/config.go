package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	// Load .env files automatically.
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Rooms    RoomsConfig
	Recorder RecorderConfig
	Resolver ResolverConfig
	History  HistoryConfig
	Status   StatusConfig
}

type RoomsConfig struct {
	IDs []string
}

type RecorderConfig struct {
	OutputDir       string
	FFmpegPath      string // empty means auto-discover
	CheckInterval   time.Duration
	RetryDelay      time.Duration
	StopGrace       time.Duration
	MonitorInterval time.Duration
}

type ResolverConfig struct {
	Quality     int    // preferred qn value, e.g. 25000 for 原画真彩/4K
	StreamIndex int    // which offered stream variant to record
	Cookies     string // raw cookie header, unlocks higher qualities
}

type HistoryConfig struct {
	URI  string // empty disables the history store
	Name string
}

type StatusConfig struct {
	Addr string // empty disables the status API
}

// Load reads configuration from environment variables and any .env file.
func Load() (*Config, error) {
	cfg := &Config{
		Rooms: RoomsConfig{
			IDs: splitList(getEnv("ROOM_IDS", "")),
		},
		Recorder: RecorderConfig{
			OutputDir:       getEnv("OUTPUT_DIR", "./recordings"),
			FFmpegPath:      getEnv("FFMPEG_PATH", ""),
			CheckInterval:   getDurationEnv("CHECK_INTERVAL", 30*time.Second),
			RetryDelay:      getDurationEnv("RETRY_DELAY", 60*time.Second),
			StopGrace:       getDurationEnv("STOP_GRACE", 10*time.Second),
			MonitorInterval: getDurationEnv("MONITOR_INTERVAL", time.Second),
		},
		Resolver: ResolverConfig{
			Quality:     getIntEnv("QUALITY", 25000),
			StreamIndex: getIntEnv("STREAM_INDEX", 0),
			Cookies:     getEnv("COOKIES", ""),
		},
		History: HistoryConfig{
			URI:  getEnv("DB_URI", ""),
			Name: getEnv("DB_NAME", "liverec"),
		},
		Status: StatusConfig{
			Addr: getEnv("STATUS_ADDR", ""),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Rooms.IDs) == 0 {
		return fmt.Errorf("ROOM_IDS is required (comma-separated room ids)")
	}
	if c.Recorder.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.Recorder.CheckInterval <= 0 {
		return fmt.Errorf("invalid check interval: %s", c.Recorder.CheckInterval)
	}
	if c.Recorder.RetryDelay <= 0 {
		return fmt.Errorf("invalid retry delay: %s", c.Recorder.RetryDelay)
	}
	if c.Recorder.StopGrace <= 0 {
		return fmt.Errorf("invalid stop grace period: %s", c.Recorder.StopGrace)
	}
	if c.Recorder.MonitorInterval <= 0 {
		return fmt.Errorf("invalid monitor interval: %s", c.Recorder.MonitorInterval)
	}
	if c.Resolver.Quality <= 0 {
		return fmt.Errorf("invalid quality: %d", c.Resolver.Quality)
	}
	if c.Resolver.StreamIndex < 0 {
		return fmt.Errorf("invalid stream index: %d", c.Resolver.StreamIndex)
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
