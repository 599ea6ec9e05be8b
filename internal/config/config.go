package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Addr    string
	AmqpURL string
	DBUrl   string
	DBNs    string
	DBDb    string
	DBUser  string
	DBPass  string
}

// New loads configuration from environment variables.
// The SurrealDB settings are required; everything else has a sensible default.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		Addr:    getEnv("APP_ADDR", ":8080"),
		AmqpURL: getEnv("AMQP_URL", "amqp://localhost:5672"),
		DBUrl:   os.Getenv("SURREAL_URL"),
		DBUser:  os.Getenv("SURREAL_USER"),
		DBPass:  os.Getenv("SURREAL_PASS"),
		DBNs:    os.Getenv("SURREAL_NS"),
		DBDb:    os.Getenv("SURREAL_DB"),
	}

	if cfg.DBUrl == "" || cfg.DBNs == "" || cfg.DBDb == "" {
		log.Fatal("Required environment variables SURREAL_URL, SURREAL_NS, or SURREAL_DB are not set.")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
