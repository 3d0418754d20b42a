package config

const redacted = "[REDACTED]"

// Redacted returns a deep copy of the Config with every credential field
// replaced by a placeholder. Safe to log at startup.
func (c *Config) Redacted() Config {
	out := *c

	// Deep-copy slices so the copy is detached from the live config.
	out.Selection.Assets = append([]string(nil), c.Selection.Assets...)
	out.Selection.VolatilityDates = append([]string(nil), c.Selection.VolatilityDates...)
	out.Collateral.Assets = append([]CollateralAssetConfig(nil), c.Collateral.Assets...)
	out.Notify.Events = append([]string(nil), c.Notify.Events...)

	if out.Exchange.APISecret != "" {
		out.Exchange.APISecret = redacted
	}
	if out.Exchange.SecretPassword != "" {
		out.Exchange.SecretPassword = redacted
	}
	if out.Exchange.APIKey != "" {
		out.Exchange.APIKey = redactTail(out.Exchange.APIKey)
	}
	if out.Postgres.DSN != "" {
		out.Postgres.DSN = redacted
	}
	if out.Postgres.Password != "" {
		out.Postgres.Password = redacted
	}
	if out.Redis.Password != "" {
		out.Redis.Password = redacted
	}
	if out.S3.AccessKey != "" {
		out.S3.AccessKey = redactTail(out.S3.AccessKey)
	}
	if out.S3.SecretKey != "" {
		out.S3.SecretKey = redacted
	}
	if out.Notify.TelegramToken != "" {
		out.Notify.TelegramToken = redacted
	}
	if out.Notify.DiscordWebhookURL != "" {
		out.Notify.DiscordWebhookURL = redacted
	}

	return out
}

// redactTail keeps the first four characters of an identifier so operators can
// tell which key is loaded without exposing it.
func redactTail(s string) string {
	if len(s) <= 4 {
		return redacted
	}
	return s[:4] + "..."
}
