package cmd

import "net/url"

// redact hides the password of a connection URL before it is logged.
func redact(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}

	return parsed.Redacted()
}
