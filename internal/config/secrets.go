package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// MAX
	out.Max = cfg.Max
	redact(&out.Max.ApiKey)
	redact(&out.Max.ApiSecret)
	redact(&out.Max.SecretPassword)

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Server
	out.Server = cfg.Server
	redact(&out.Server.ApiKey)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}
	if cfg.Quotes.Venues != nil {
		out.Quotes.Venues = make([]string, len(cfg.Quotes.Venues))
		copy(out.Quotes.Venues, cfg.Quotes.Venues)
	}
	if cfg.Quotes.Pairs != nil {
		out.Quotes.Pairs = make([]string, len(cfg.Quotes.Pairs))
		copy(out.Quotes.Pairs, cfg.Quotes.Pairs)
	}
	if cfg.Triangular.Pairs != nil {
		out.Triangular.Pairs = make([]string, len(cfg.Triangular.Pairs))
		copy(out.Triangular.Pairs, cfg.Triangular.Pairs)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
