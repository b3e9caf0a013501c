package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	EnvAddress = "SYBL_ADDRESS"

	defaultAddress = "sybl.tech:7000"
)

// ModelConfig describes one model runner: its enrollment identity, the
// service endpoint, and the job constraints it will accept.
type ModelConfig struct {
	Email              string   `toml:"email"`
	ModelName          string   `toml:"model_name"`
	Addr               string   `toml:"addr"`
	PredictionTypes    []string `toml:"prediction_types"`
	TimeoutMinutes     int      `toml:"timeout_minutes"`
	DeclineBadDatasets bool     `toml:"decline_bad_datasets"`
}

// LoadDotenv pulls a local .env into the process environment if one
// exists. Useful for development; absence is not an error.
func LoadDotenv() {
	_ = godotenv.Load()
}

func LoadModelConfig(path string) (ModelConfig, error) {
	var cfg ModelConfig
	if err := loadToml(path, &cfg); err != nil {
		return ModelConfig{}, err
	}
	if cfg.Addr == "" {
		cfg.Addr = getEnv(EnvAddress, defaultAddress)
	}
	if len(cfg.PredictionTypes) == 0 {
		cfg.PredictionTypes = []string{"regression", "classification"}
	}
	if cfg.TimeoutMinutes <= 0 {
		cfg.TimeoutMinutes = 10
	}
	if err := ValidateModelConfig(cfg); err != nil {
		return ModelConfig{}, err
	}
	return cfg, nil
}

func ValidateModelConfig(cfg ModelConfig) error {
	if strings.TrimSpace(cfg.Email) == "" {
		return fmt.Errorf("model config missing email")
	}
	if strings.TrimSpace(cfg.ModelName) == "" {
		return fmt.Errorf("model config missing model_name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("model config missing addr")
	}
	return nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
