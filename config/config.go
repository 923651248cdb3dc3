package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends understood by the server.
const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

// Database drivers understood by the server.
const (
	DBDriverMySQL  = "mysql"
	DBDriverMemory = "memory"
)

// Config stores the application configuration.
type Config struct {
	ServerAddr string

	FFmpegPath  string
	FFprobePath string
	FFplayPath  string
	MP3Bitrate  string // e.g., "128k"

	// Object key prefixes, mirroring the folders of the desktop app.
	OriginalFolder    string
	WAVRingtoneFolder string
	MP3RingtoneFolder string

	StorageBackend string
	DataDir        string // Root of the local object store
	TempDir        string // Scratch space for ffmpeg input/output
	ImportWatchDir string // Optional drop folder for automatic imports
	MaxUploadBytes int64

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	ProbeCacheTTL time.Duration

	AuthSecret        string // empty disables API authentication
	AuthIssuer        string
	AuthTokenTTL      time.Duration
	AdminUsername     string
	AdminPasswordHash string

	SchedulerTick time.Duration

	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	ffmpegPath := getEnv("FFMPEG_PATH", "ffmpeg")
	dataDir := getEnv("DATA_DIR", "data")

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":5000"),

		FFmpegPath:  ffmpegPath,
		FFprobePath: getEnv("FFPROBE_PATH", siblingTool(ffmpegPath, "ffprobe")),
		FFplayPath:  getEnv("FFPLAY_PATH", siblingTool(ffmpegPath, "ffplay")),
		MP3Bitrate:  getEnv("MP3_BITRATE", "128k"),

		OriginalFolder:    "original_sound",
		WAVRingtoneFolder: "wav_ringtones",
		MP3RingtoneFolder: "mp3_ringtones",

		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", StorageLocal)),
		DataDir:        dataDir,
		TempDir:        getEnv("TEMP_DIR", filepath.Join(dataDir, "tmp")),
		ImportWatchDir: getEnv("IMPORT_WATCH_DIR", ""),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_MB", 64)) << 20,

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "ringcut"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", DBDriverMemory)),
		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // no hardcoded default for passwords
		DBName:     getEnv("DB_NAME", "ringcut"),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		ProbeCacheTTL: getEnvDuration("PROBE_CACHE_TTL", 24*time.Hour),

		AuthSecret:        getEnv("AUTH_SECRET", ""),
		AuthIssuer:        getEnv("AUTH_ISSUER", "ringcut"),
		AuthTokenTTL:      getEnvDuration("AUTH_TOKEN_TTL", 12*time.Hour),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		SchedulerTick: getEnvDuration("SCHEDULER_TICK", 15*time.Second),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", filepath.Join("logs", "ringcut.log")),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 50),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
	}
}

// RedisEnabled reports whether a Redis host has been configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// AuthEnabled reports whether API requests must carry a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.AuthSecret != ""
}

// siblingTool derives the path of ffprobe/ffplay from the configured ffmpeg binary,
// so a portable ffmpeg install only needs FFMPEG_PATH.
func siblingTool(ffmpegPath, tool string) string {
	dir, file := filepath.Split(ffmpegPath)
	if !strings.Contains(file, "ffmpeg") {
		return tool
	}
	return dir + strings.Replace(file, "ffmpeg", tool, 1)
}
