package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ErrMissingTwilio is returned when the Twilio credentials or sender identity
// are incomplete. It is not a load failure: the service starts and every
// dispatch reports it instead.
var ErrMissingTwilio = errors.New("Missing Twilio configuration. Ensure TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, and either TWILIO_PHONE_NUMBER or TWILIO_MESSAGING_SERVICE_SID are set.")

// Config captures all runtime configuration for the dispatch service.
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	Kafka     KafkaConfig
	Providers ProviderConfig
	Message   MessageConfig
	Timeouts  TimeoutConfig
	Worker    WorkerConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

// HTTPConfig tunes the inbound API server.
type HTTPConfig struct {
	ReadTimeoutSeconds  int
	WriteTimeoutSeconds int
	RequestMaxBytes     int64
	AllowedOrigins      []string
}

// KafkaConfig defines the optional event stream. An empty broker list
// disables publishing and the intake worker.
type KafkaConfig struct {
	Brokers       []string
	RequestTopic  string
	EventTopic    string
	ConsumerGroup string
}

// Enabled reports whether brokers were configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// TwilioConfig stores Twilio credentials and the sender selector.
type TwilioConfig struct {
	AccountSID          string
	AuthToken           string
	PhoneNumber         string
	MessagingServiceSID string
}

// Validate checks that credentials and at least one sender selector exist.
func (t TwilioConfig) Validate() error {
	if strings.TrimSpace(t.AccountSID) == "" || strings.TrimSpace(t.AuthToken) == "" {
		return ErrMissingTwilio
	}
	if strings.TrimSpace(t.PhoneNumber) == "" && strings.TrimSpace(t.MessagingServiceSID) == "" {
		return ErrMissingTwilio
	}
	return nil
}

// ProviderConfig wraps configuration for the outbound SMS provider.
type ProviderConfig struct {
	SMSProvider string
	Twilio      TwilioConfig
}

// MessageConfig holds the message formatting policy.
type MessageConfig struct {
	Separator string
}

// TimeoutConfig contains timeout thresholds for outbound providers.
type TimeoutConfig struct {
	ProviderTimeoutSeconds int
}

// WorkerConfig controls the Kafka intake worker.
type WorkerConfig struct {
	Concurrency int
	MsgMaxBytes int
	CommitOnAck bool
}

// Load reads environment variables, applies defaults, validates required
// values and returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.Port = ldr.getInt("APP_PORT", 8080, false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.HTTP.ReadTimeoutSeconds = ldr.getInt("HTTP_READ_TIMEOUT_SECONDS", 15, false)
	cfg.HTTP.WriteTimeoutSeconds = ldr.getInt("HTTP_WRITE_TIMEOUT_SECONDS", 120, false)
	cfg.HTTP.RequestMaxBytes = int64(ldr.getInt("REQUEST_MAX_BYTES", 1<<20, false))
	cfg.HTTP.AllowedOrigins = ldr.getStringSlice("CORS_ALLOWED_ORIGINS", false)
	if len(cfg.HTTP.AllowedOrigins) == 0 {
		cfg.HTTP.AllowedOrigins = []string{"*"}
	}

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", false)
	cfg.Kafka.RequestTopic = ldr.getString("KAFKA_REQUEST_TOPIC", "dispatch.request", false)
	cfg.Kafka.EventTopic = ldr.getString("KAFKA_EVENT_TOPIC", "dispatch.events", false)
	cfg.Kafka.ConsumerGroup = ldr.getString("KAFKA_CONSUMER_GROUP", "dispatch-worker", false)

	cfg.Providers.SMSProvider = strings.ToLower(ldr.getString("SMS_PROVIDER", "twilio", false))
	switch cfg.Providers.SMSProvider {
	case "twilio", "mock":
	default:
		ldr.addError("SMS_PROVIDER must be one of: twilio, mock")
	}
	cfg.Providers.Twilio.AccountSID = ldr.getString("TWILIO_ACCOUNT_SID", "", false)
	cfg.Providers.Twilio.AuthToken = ldr.getString("TWILIO_AUTH_TOKEN", "", false)
	cfg.Providers.Twilio.PhoneNumber = ldr.getString("TWILIO_PHONE_NUMBER", "", false)
	cfg.Providers.Twilio.MessagingServiceSID = ldr.getString("TWILIO_MESSAGING_SERVICE_SID", "", false)

	cfg.Message.Separator = unescape(ldr.getRaw("MESSAGE_SEPARATOR", `\n\n`))

	cfg.Timeouts.ProviderTimeoutSeconds = ldr.getInt("PROVIDER_TIMEOUT_SECONDS", 30, false)
	if cfg.Timeouts.ProviderTimeoutSeconds < 0 {
		ldr.addError("PROVIDER_TIMEOUT_SECONDS cannot be negative")
	}

	cfg.Worker.Concurrency = ldr.getInt("WORKER_CONCURRENCY", 4, false)
	cfg.Worker.MsgMaxBytes = ldr.getInt("MSG_MAX_BYTES", 1<<20, false)
	cfg.Worker.CommitOnAck = ldr.getBool("COMMIT_ON_SUCCESS_ONLY", true, false)
	if cfg.Worker.Concurrency < 1 {
		ldr.addError("WORKER_CONCURRENCY must be >= 1")
	}

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// unescape turns the literal sequences \n and \t into their control
// characters so separators can be expressed in a single-line env value.
func unescape(value string) string {
	return strings.NewReplacer(`\n`, "\n", `\t`, "\t").Replace(value)
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

// getRaw returns the variable untrimmed, since whitespace can be meaningful.
func (l *envLoader) getRaw(key, def string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return def
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		i, err := strconv.Atoi(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid integer", key))
			return def
		}
		return i
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid boolean", key))
			return def
		}
		return parsed
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		if required {
			return nil
		}
		return []string{}
	}
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
