// Package alert posts operator notifications to a Slack-compatible
// incoming webhook (Discord accepts the same payload on its /slack
// webhook endpoint).
package alert

// Config holds alert configuration.
type Config struct {
	// Enabled controls whether alerts are sent.
	Enabled bool `toml:"enabled"`

	// WebhookURL is the incoming webhook URL.
	WebhookURL string `toml:"webhook_url"`

	// Channel overrides the webhook's default channel (Slack only).
	Channel string `toml:"channel,omitempty"`

	// NotifyOn controls which events are sent.
	NotifyOn NotifySettings `toml:"notify_on"`
}

// NotifySettings controls which events trigger an alert.
type NotifySettings struct {
	// MemberJoined notifies when a new member starts onboarding (can be noisy).
	MemberJoined bool `toml:"member_joined"`

	// ProvisionFailed notifies when workspace setup fails part way.
	ProvisionFailed bool `toml:"provision_failed"`

	// CleanupFailed notifies when a departed member's channels could not be removed.
	CleanupFailed bool `toml:"cleanup_failed"`

	// SaveFailed notifies when the registry snapshot could not be written.
	SaveFailed bool `toml:"save_failed"`
}

// DefaultConfig returns a disabled config with failure alerts selected.
func DefaultConfig() Config {
	return Config{
		Enabled: false,
		NotifyOn: NotifySettings{
			MemberJoined:    false, // Too noisy by default
			ProvisionFailed: true,
			CleanupFailed:   true,
			SaveFailed:      true,
		},
	}
}
