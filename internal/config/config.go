package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// ServerHost is the public base URL Twilio uses to reach the webhook
	// endpoints, e.g. an ngrok or load balancer URL.
	ServerHost string

	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioFromNumber    string
	TwilioWebhookSecret string

	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string

	FHIRAuthURL      string
	FHIRBaseURL      string
	FHIRClientID     string
	FHIRClientSecret string
	FHIRUsername     string
	FHIRPassword     string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// CORSAllowedOrigins lists origins allowed to call the API from a
	// browser. "*" allows any origin.
	CORSAllowedOrigins []string

	SynthesisWorkerCount int
	SynthesisQueueSize   int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:       getEnv("PORT", "8000"),
		Env:        getEnv("ENV", "development"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		ServerHost: strings.TrimSuffix(getEnv("SERVER_HOST", "http://localhost:8000"), "/"),

		TwilioAccountSID:    getEnv("ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("AUTH_TOKEN", ""),
		TwilioFromNumber:    getEnv("TWILIO_FROM_NUMBER", ""),
		TwilioWebhookSecret: getEnv("TWILIO_WEBHOOK_SECRET", ""),

		ElevenLabsAPIKey:  getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID: getEnv("ELEVENLABS_VOICE_ID", "GJid0jgRsqjUy21Avuex"),

		FHIRAuthURL:      getEnv("FHIR_AUTH_URL", "https://auth.cegconsultores.cl/realms/fhir/protocol/openid-connect/token"),
		FHIRBaseURL:      getEnv("FHIR_BASE_URL", "https://fhir.cegconsultores.cl/fhir"),
		FHIRClientID:     getEnv("FHIR_CLIENT_ID", ""),
		FHIRClientSecret: getEnv("FHIR_CLIENT_SECRET", ""),
		FHIRUsername:     getEnv("FHIR_USERNAME", ""),
		FHIRPassword:     getEnv("FHIR_PASSWORD", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", "*"),

		SynthesisWorkerCount: getEnvAsInt("SYNTHESIS_WORKER_COUNT", 2),
		SynthesisQueueSize:   getEnvAsInt("SYNTHESIS_QUEUE_SIZE", 64),
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

// getEnvAsList retrieves a comma-separated environment variable as a slice
func getEnvAsList(key, defaultValue string) []string {
	var values []string
	for _, v := range strings.Split(getEnv(key, defaultValue), ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
