package env

import "os"

// Get reads an environment variable, returning fallback when it is unset or
// empty. Config proper goes through envconfig; this exists for the few knobs
// read before config loads, such as the log format.
func Get(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
