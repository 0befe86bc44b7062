package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server:  ServerConfig{Port: "8080", Mode: "debug"},
		Review:  ReviewConfig{IntervalsDays: []int{1, 2, 4}, DailyGenerationAt: "00:05"},
		Events:  EventsConfig{Mode: "sync"},
		Grading: GradingConfig{PassThreshold: 0},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing port", func(c *Config) { c.Server.Port = "" }, true},
		{"unknown server mode", func(c *Config) { c.Server.Mode = "prod" }, true},
		{"unknown events mode", func(c *Config) { c.Events.Mode = "rabbitmq" }, true},
		{"kafka events mode", func(c *Config) { c.Events.Mode = "kafka" }, false},
		{"non-positive interval", func(c *Config) { c.Review.IntervalsDays = []int{1, 0} }, true},
		{"bad daily time", func(c *Config) { c.Review.DailyGenerationAt = "25:00" }, true},
		{"negative threshold", func(c *Config) { c.Grading.PassThreshold = -1 }, true},
		{"unknown driver", func(c *Config) { c.Database.Driver = "sqlite" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScanInterval(t *testing.T) {
	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{0, time.Minute},
		{-5, time.Minute},
		{30, 30 * time.Second},
	}
	for _, tt := range tests {
		got := ExamConfig{TimeoutScanIntervalSeconds: tt.seconds}.ScanInterval()
		if got != tt.want {
			t.Errorf("ScanInterval(%d) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}
