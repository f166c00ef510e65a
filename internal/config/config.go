package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	ClinicName    string
	ClinicPhone   string
	ClinicAddress string

	// Workflow engine tuning. RetryThreshold is the number of consecutive
	// failed extractions at a single stage before the session escalates.
	RetryThreshold      int
	CollaboratorTimeout time.Duration
	SessionTTL          time.Duration

	// Slot search
	SlotLookaheadDays int
	SlotTopN          int

	// Reminder offsets before the confirmed slot start.
	ReminderOffsets      []time.Duration
	ReminderPollInterval time.Duration

	// Export
	ExportRetryInterval time.Duration
	ExportCSVPath       string

	DatabaseURL string

	UseMemoryQueue bool
	WorkerCount    int

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Extractor / LLM
	ExtractorBackend string // "rules", "gemini", or "bedrock"
	GeminiAPIKey     string
	GeminiModelID    string
	BedrockModelID   string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	WorkflowQueueURL    string
	HandoffTable        string

	// SMS
	SMSAPIKey     string
	SMSProfileID  string
	SMSFromNumber string

	// Email
	EmailProvider     string // "sendgrid", "ses", or "stub"
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		ClinicName:    getEnv("CLINIC_NAME", "MediCare Allergy & Wellness Center"),
		ClinicPhone:   getEnv("CLINIC_PHONE", "(555) 123-4567"),
		ClinicAddress: getEnv("CLINIC_ADDRESS", "456 Medical Center Blvd, Healthcare City, HC 67890"),

		RetryThreshold:      getEnvAsInt("RETRY_THRESHOLD", 3),
		CollaboratorTimeout: getEnvAsDuration("COLLABORATOR_TIMEOUT", 10*time.Second),
		SessionTTL:          getEnvAsDuration("SESSION_TTL", 24*time.Hour),

		SlotLookaheadDays: getEnvAsInt("SLOT_LOOKAHEAD_DAYS", 14),
		SlotTopN:          getEnvAsInt("SLOT_TOP_N", 5),

		ReminderOffsets:      getEnvAsOffsets("REMINDER_OFFSETS", []time.Duration{24 * time.Hour, 4 * time.Hour, time.Hour}),
		ReminderPollInterval: getEnvAsDuration("REMINDER_POLL_INTERVAL", time.Minute),

		ExportRetryInterval: getEnvAsDuration("EXPORT_RETRY_INTERVAL", 5*time.Minute),
		ExportCSVPath:       getEnv("EXPORT_CSV_PATH", "data/appointments.csv"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", true),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		ExtractorBackend: strings.ToLower(strings.TrimSpace(getEnv("EXTRACTOR_BACKEND", "rules"))),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:    getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		BedrockModelID:   getEnv("BEDROCK_MODEL_ID", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		WorkflowQueueURL:    getEnv("WORKFLOW_QUEUE_URL", ""),
		HandoffTable:        getEnv("HANDOFF_TABLE", "scheduling_handoffs"),

		SMSAPIKey:     getEnv("SMS_API_KEY", ""),
		SMSProfileID:  getEnv("SMS_MESSAGING_PROFILE_ID", ""),
		SMSFromNumber: getEnv("SMS_FROM_NUMBER", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "MediCare Scheduling"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "MediCare Scheduling"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsOffsets parses a comma-separated list of durations, e.g. "24h,4h,1h".
func getEnvAsOffsets(key string, defaultValue []time.Duration) []time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	offsets := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil || d <= 0 {
			return defaultValue
		}
		offsets = append(offsets, d)
	}
	if len(offsets) == 0 {
		return defaultValue
	}
	return offsets
}
