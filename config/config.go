// Package config loads emergency-button service configuration from the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Google   GoogleConfig
	Sheets   SheetsConfig
	Calendar CalendarConfig
	Invites  InviteConfig
	Firebase FirebaseConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

// GoogleConfig points at the OAuth client secrets and the per-scope token
// files written by the authenticator.
type GoogleConfig struct {
	CredentialFile string
	SheetToken     string
	CalendarToken  string
}

type SheetsConfig struct {
	SpreadsheetID string
	LogSheet      string // append target, one row per inbound SMS
	ClientSheet   string // device id -> owner emails
}

type CalendarConfig struct {
	CalendarID string
}

type InviteConfig struct {
	DedupWindow time.Duration // 0 disables duplicate suppression
}

type FirebaseConfig struct {
	ProjectID         string
	CredentialsPath   string
	FirestoreDatabase string
	InvitesCollection string
}

// Load returns application configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "3000"),
			Env:  getEnv("APP_ENV", "development"),
		},
		Google: GoogleConfig{
			CredentialFile: getEnv("CREDENTIAL_FILE", "credentials.json"),
			SheetToken:     getEnv("SHEET_TOKEN", ""),
			// CALENDER_TOKEN is the historical spelling.
			CalendarToken: getEnv("CALENDAR_TOKEN", getEnv("CALENDER_TOKEN", "")),
		},
		Sheets: SheetsConfig{
			SpreadsheetID: getEnv("GOOGLE_SHEET", ""),
			LogSheet:      getEnv("SMS_LOG_SHEET", "SMS Logs"),
			ClientSheet:   getEnv("CLIENT_INFO_SHEET", "Client Info"),
		},
		Calendar: CalendarConfig{
			CalendarID: getEnv("CALENDAR_ID", "primary"),
		},
		Invites: InviteConfig{
			DedupWindow: getEnvDuration("INVITE_DEDUP_WINDOW", 10*time.Minute),
		},
		Firebase: FirebaseConfig{
			ProjectID:         getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsPath:   getEnv("FIREBASE_CREDENTIALS_PATH", ""),
			FirestoreDatabase: getEnv("FIRESTORE_DATABASE", "(default)"),
			InvitesCollection: getEnv("FIRESTORE_INVITES_COLLECTION", "emergency_invites"),
		},
	}
}

// Validate reports the first required setting that is missing.
func (c *Config) Validate() error {
	required := []struct {
		key, value string
	}{
		{"CREDENTIAL_FILE", c.Google.CredentialFile},
		{"SHEET_TOKEN", c.Google.SheetToken},
		{"CALENDAR_TOKEN", c.Google.CalendarToken},
		{"GOOGLE_SHEET", c.Sheets.SpreadsheetID},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("required environment variable %s is not set", r.key)
		}
	}
	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// Bare integers are read as seconds.
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
