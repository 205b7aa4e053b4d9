package config

import (
	"log"

	"github.com/spf13/viper"
)

type JobsConfig struct {
	// Cron schedule for the derived-state refresh (overdue flags, pack
	// expiry notices). Empty disables the job.
	RefreshSchedule string `mapstructure:"refresh_schedule"`
}

type EmailConfig struct {
	From       string `mapstructure:"from"`
	SMTPHost   string `mapstructure:"smtp_host"`
	SMTPPort   int    `mapstructure:"smtp_port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	PaymentURL string `mapstructure:"payment_url_template"`
	InviteURL  string `mapstructure:"invite_url_template"`
}

type Config struct {
	DatabaseURL   string      `mapstructure:"database_url"`
	ServerPort    string      `mapstructure:"server_port"`
	JWTSecret     string      `mapstructure:"jwt_secret"`
	AllowedOrigin string      `mapstructure:"allowed_origin"`
	Jobs          JobsConfig  `mapstructure:"jobs"`
	Email         EmailConfig `mapstructure:"email"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}

	if config.JWTSecret == "" {
		log.Fatal("JWT secret must be set in the config file")
	}

	if config.AllowedOrigin == "" {
		config.AllowedOrigin = "http://localhost:3000"
	}

	if config.Jobs.RefreshSchedule == "" {
		config.Jobs.RefreshSchedule = "@hourly"
	}

	if config.Email.SMTPPort == 0 {
		config.Email.SMTPPort = 587
	}
	if config.Email.PaymentURL == "" {
		config.Email.PaymentURL = "https://app.atelierhq.dev/invoices/%s/pay"
	}
	if config.Email.InviteURL == "" {
		config.Email.InviteURL = "https://app.atelierhq.dev/invite/accept?token=%s"
	}

	return &config
}
