package internal

import "time"

type Config struct {
	Address         string        `env:"RUN_ADDRESS"`
	DatabaseURI     string        `env:"DATABASE_URI"`
	ProviderName    string        `env:"SMS_PROVIDER"`
	ProviderAPIKey  string        `env:"SMS_API_KEY"`
	ProviderAPIURL  string        `env:"SMS_API_URL"`
	OrderTimeout    time.Duration `env:"ORDER_TIMEOUT"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL"`
	StreamHeartbeat time.Duration `env:"STREAM_HEARTBEAT"`
	LogLevel        string        `env:"LOG_LEVEL"`
}
