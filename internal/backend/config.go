package backend

import (
	"errors"
	"fmt"

	"expensehub/internal/config"
)

// SequenceBackend selects where bill sequence numbers are reserved.
type SequenceBackend string

const (
	SequenceSQLite SequenceBackend = "sqlite"
	SequenceRedis  SequenceBackend = "redis"
)

func (b SequenceBackend) IsValid() bool {
	return b == SequenceSQLite || b == SequenceRedis
}

// Config holds what the factory needs to open the infrastructure.
type Config struct {
	SQLiteDBPath    string
	SequenceBackend SequenceBackend
	RedisURL        string

	// Empty AMQPURL disables publishing.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	// RequireAMQP turns a broker connection failure into an error instead
	// of a warning. The export worker cannot run without it.
	RequireAMQP bool
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}
	seq := SequenceBackend(appConfig.BillSequenceBackend)
	if seq == "" {
		seq = SequenceSQLite
	}
	if !seq.IsValid() {
		return Config{}, fmt.Errorf("invalid bill sequence backend: %s", appConfig.BillSequenceBackend)
	}
	return Config{
		SQLiteDBPath:    appConfig.SQLiteDBPath,
		SequenceBackend: seq,
		RedisURL:        appConfig.RedisURL,
		AMQPURL:         appConfig.AMQPURL,
		AMQPExchange:    appConfig.AMQPExchange,
		AMQPQueue:       appConfig.AMQPQueue,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if c.SQLiteDBPath == "" {
		return errors.New("SQLite database path is required")
	}
	if !c.SequenceBackend.IsValid() {
		return fmt.Errorf("invalid bill sequence backend: %s", c.SequenceBackend)
	}
	if c.SequenceBackend == SequenceRedis && c.RedisURL == "" {
		return errors.New("Redis URL is required for the redis sequence backend")
	}
	if c.RequireAMQP && c.AMQPURL == "" {
		return errors.New("AMQP URL is required")
	}
	return nil
}
