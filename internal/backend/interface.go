package backend

import (
	"context"

	"expensehub/internal/amqp"
	"expensehub/internal/core"
	"expensehub/internal/storage"
)

// CleanupFunc releases the resources held by a Dependencies value.
type CleanupFunc func() error

// Checker is probed by the readiness endpoint.
type Checker interface {
	Ping(ctx context.Context) error
}

// Dependencies is the wired set of infrastructure a binary runs on.
type Dependencies struct {
	Store *storage.SQLiteRepository

	Sequencer     core.BillSequencer
	SequencerName string

	// AMQP is nil when messaging is disabled or the broker was unreachable.
	AMQP *amqp.Client

	// Checks maps a dependency name to its readiness probe.
	Checks map[string]Checker

	Cleanup CleanupFunc
}
