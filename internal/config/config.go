package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port            string
	Environment     string
	SupabaseURL     string
	SupabaseDBURL   string
	SupabaseJWKSURL string // Constructed from SupabaseURL + /auth/v1/.well-known/jwks.json
	CORSOrigins     string
	TablePrefix     string
	// ListenDBURL must be a session-mode connection; PgBouncer in
	// transaction mode drops LISTEN registrations.
	ListenDBURL string
	// Realtime fan-out. Empty means the in-process feed is used.
	RedisURL string
	Storage  StorageConfig
	// Per-identity throttling for uploads and comment posts
	UploadsPerMinute  int
	CommentsPerMinute int
	LogDir            string
	// Debug flags
	Debug bool
}

// StorageConfig describes the S3-compatible object store holding uploaded files.
type StorageConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// PublicBaseURL is prefixed to object keys to build public file URLs.
	PublicBaseURL string
}

// Enabled reports whether a remote object store is configured.
func (s StorageConfig) Enabled() bool {
	return s.Endpoint != ""
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")
	tablePrefix := getTablePrefix(env)
	supabaseURL := getEnv("SUPABASE_URL", "")
	dbURL := getEnv("SUPABASE_DB_URL", "")
	bucket := getEnv("STORAGE_BUCKET", DefaultBucket)

	// Construct JWKS URL from Supabase URL
	jwksURL := supabaseURL + "/auth/v1/.well-known/jwks.json"

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     env,
		SupabaseURL:     supabaseURL,
		SupabaseDBURL:   dbURL,
		ListenDBURL:     getEnv("SUPABASE_LISTEN_DB_URL", dbURL),
		SupabaseJWKSURL: jwksURL,
		CORSOrigins:     getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix:     tablePrefix,
		RedisURL:        getEnv("REDIS_URL", ""),
		Storage: StorageConfig{
			Endpoint:      getEnv("STORAGE_ENDPOINT", defaultStorageEndpoint(supabaseURL)),
			Region:        getEnv("STORAGE_REGION", "us-east-1"),
			Bucket:        bucket,
			AccessKey:     getEnv("STORAGE_ACCESS_KEY", ""),
			SecretKey:     getEnv("STORAGE_SECRET_KEY", ""),
			PublicBaseURL: getEnv("STORAGE_PUBLIC_URL", defaultPublicURL(supabaseURL, bucket)),
		},
		UploadsPerMinute:  getEnvInt("UPLOAD_RATE_PER_MINUTE", 10),
		CommentsPerMinute: getEnvInt("COMMENT_RATE_PER_MINUTE", 30),
		LogDir:            getEnv("LOG_DIR", ""),
		// Debug flags - default to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// defaultStorageEndpoint points at Supabase Storage's S3 protocol endpoint.
func defaultStorageEndpoint(supabaseURL string) string {
	if supabaseURL == "" {
		return ""
	}
	return supabaseURL + "/storage/v1/s3"
}

// defaultPublicURL matches the URL shape Supabase returns for public buckets.
func defaultPublicURL(supabaseURL, bucket string) string {
	if supabaseURL == "" {
		return "memory://" + bucket
	}
	return supabaseURL + "/storage/v1/object/public/" + bucket
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return defaultValue
	}
	return n
}
