package escalate

// Config selects which notifier backends are active
type Config struct {
	Terminal     bool
	WebhookURL   string
	SlackWebhook string
}

// FromConfig builds a Notifier from configuration. With nothing
// configured it falls back to the terminal so dropped tasks are never
// silent.
func FromConfig(cfg Config) Notifier {
	var notifiers []Notifier

	if cfg.Terminal {
		notifiers = append(notifiers, NewTerminal())
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, NewWebhook(cfg.WebhookURL))
	}
	if cfg.SlackWebhook != "" {
		notifiers = append(notifiers, NewSlack(cfg.SlackWebhook))
	}

	if len(notifiers) == 0 {
		return NewTerminal()
	}
	if len(notifiers) == 1 {
		return notifiers[0]
	}
	return NewMulti(notifiers...)
}
