package backend

import (
	"context"

	"tracker/internal/amqp"
	"tracker/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the storage backend, the optional event publisher
// and a cleanup function releasing both.
type BackendResult struct {
	Backend   store.Backend
	Publisher *amqp.Client // nil when AMQP is not configured or unreachable
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string
	DatabaseURL  string
	BoltDBPath   string

	// Memory backend seed files live here.
	DataDirectory string

	// An empty AMQPURL disables change events.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	BoltBackend     BackendType = "bolt"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend, BoltBackend:
		return true
	default:
		return false
	}
}
