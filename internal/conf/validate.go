package conf

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
)

// Accepted values for enumerated settings.
var (
	StorageBackends = []string{"gcs", "s3", "local"}
	DatabaseTypes   = []string{"sqlite", "mysql"}
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateModelSettings,
		validatePipelineSettings,
		validateStorageSettings,
		validateDatabaseSettings,
		validateMQTTSettings,
		validatePushSettings,
		validateOutboxSettings,
		validateWebServerSettings,
		validateSentrySettings,
	}

	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateModelSettings(s *Settings) error {
	var errs []string

	if s.Model.Path == "" {
		errs = append(errs, "model path must not be empty")
	}
	if s.Model.Threads < 0 {
		errs = append(errs, fmt.Sprintf("model threads must be non-negative, got %d", s.Model.Threads))
	}
	if s.Model.InputSize <= 0 {
		errs = append(errs, fmt.Sprintf("model input size must be positive, got %d", s.Model.InputSize))
	}

	return joinSection("model", errs)
}

func validatePipelineSettings(s *Settings) error {
	var errs []string
	p := &s.Pipeline

	if p.AlertThreshold < 0 || p.AlertThreshold > 1 {
		errs = append(errs, fmt.Sprintf("alert threshold must be between 0 and 1, got %g", p.AlertThreshold))
	}
	if p.HealthyLabel == "" {
		errs = append(errs, "healthy label must not be empty")
	}
	if p.Workers < 1 {
		errs = append(errs, fmt.Sprintf("workers must be at least 1, got %d", p.Workers))
	}
	if p.Timeout < 0 {
		errs = append(errs, "timeout must not be negative")
	}
	if p.Poll.Enabled {
		if p.Poll.Interval <= 0 {
			errs = append(errs, "poll interval must be positive")
		}
		if p.Poll.BatchSize < 1 {
			errs = append(errs, fmt.Sprintf("poll batch size must be at least 1, got %d", p.Poll.BatchSize))
		}
	}

	return joinSection("pipeline", errs)
}

func validateStorageSettings(s *Settings) error {
	var errs []string
	st := &s.Storage

	switch strings.ToLower(st.Backend) {
	case "local":
		if st.Local.Root == "" {
			errs = append(errs, "local storage root must not be empty")
		}
	case "s3":
		if st.S3.Region == "" && st.S3.Endpoint == "" {
			errs = append(errs, "s3 storage requires a region or an endpoint")
		}
		if (st.S3.AccessKeyID == "") != (st.S3.SecretAccessKey == "") {
			errs = append(errs, "s3 access key id and secret access key must be set together")
		}
	case "gcs":
	default:
		errs = append(errs, fmt.Sprintf("storage backend must be one of %s, got %q", strings.Join(StorageBackends, ", "), st.Backend))
	}

	return joinSection("storage", errs)
}

func validateDatabaseSettings(s *Settings) error {
	var errs []string
	db := &s.Database

	switch strings.ToLower(db.Type) {
	case "sqlite":
		if db.SQLite.Path == "" {
			errs = append(errs, "sqlite path must not be empty")
		}
	case "mysql":
		if db.MySQL.Host == "" || db.MySQL.Database == "" {
			errs = append(errs, "mysql host and database must be set")
		}
	default:
		errs = append(errs, fmt.Sprintf("database type must be one of %s, got %q", strings.Join(DatabaseTypes, ", "), db.Type))
	}

	return joinSection("database", errs)
}

func validateMQTTSettings(s *Settings) error {
	m := &s.MQTT
	if !m.Enabled {
		return nil
	}

	var errs []string
	if m.Broker == "" {
		errs = append(errs, "broker must be set when mqtt is enabled")
	} else if u, err := url.Parse(m.Broker); err != nil || u.Host == "" {
		errs = append(errs, fmt.Sprintf("invalid broker URL %q", m.Broker))
	}
	if m.EventTopic == "" && m.AlertTopic == "" {
		errs = append(errs, "at least one of event topic or alert topic must be set")
	}
	if m.QoS > 2 {
		errs = append(errs, fmt.Sprintf("qos must be 0, 1 or 2, got %d", m.QoS))
	}

	return joinSection("mqtt", errs)
}

func validatePushSettings(s *Settings) error {
	p := &s.Notification.Push
	if !p.Enabled {
		return nil
	}

	var errs []string
	if len(p.URLs) == 0 {
		errs = append(errs, "at least one push URL is required when push is enabled")
	}
	if slices.Contains(p.URLs, "") {
		errs = append(errs, "push URLs must not be empty")
	}
	if p.RateLimit < 0 || p.Burst < 0 {
		errs = append(errs, "rate limit and burst must not be negative")
	}

	return joinSection("notification.push", errs)
}

func validateOutboxSettings(s *Settings) error {
	o := &s.Outbox
	if !o.Enabled {
		return nil
	}

	var errs []string
	if o.QueueSize < 1 {
		errs = append(errs, fmt.Sprintf("queue size must be at least 1, got %d", o.QueueSize))
	}
	if o.MaxRetries < 0 {
		errs = append(errs, "max retries must not be negative")
	}
	if o.Multiplier < 1 {
		errs = append(errs, fmt.Sprintf("multiplier must be at least 1, got %g", o.Multiplier))
	}
	if o.MaxDelay > 0 && o.InitialDelay > o.MaxDelay {
		errs = append(errs, "initial delay must not exceed max delay")
	}

	return joinSection("outbox", errs)
}

func validateWebServerSettings(s *Settings) error {
	w := &s.WebServer
	if !w.Enabled {
		return nil
	}

	var errs []string
	if _, _, err := net.SplitHostPort(w.Listen); err != nil {
		errs = append(errs, fmt.Sprintf("invalid listen address %q: %v", w.Listen, err))
	}
	if w.MaxUploadSize <= 0 {
		errs = append(errs, "max upload size must be positive")
	}

	return joinSection("webserver", errs)
}

func validateSentrySettings(s *Settings) error {
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		return fmt.Errorf("sentry settings errors: dsn must be set when sentry is enabled")
	}
	return nil
}

func joinSection(section string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s settings errors: %v", section, errs)
}
