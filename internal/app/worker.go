package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/fracquest/internal/config"
	"github.com/felixgeelhaar/fracquest/internal/queue"
	"github.com/felixgeelhaar/fracquest/internal/storage/postgres"
)

// Worker drains the attempt queue into the Postgres attempt log
type Worker struct {
	conn     *queue.Connection
	log      *postgres.AttemptLog
	consumer *queue.Consumer
}

// NewWorker connects to RabbitMQ and the attempt log database
func NewWorker(ctx context.Context, cfg *config.LocalConfig) (*Worker, error) {
	if cfg.Queue.URL == "" {
		return nil, errors.New("queue.url is required to run the attempt worker")
	}
	if cfg.Remote.DatabaseURL == "" {
		return nil, errors.New("remote.database_url is required to run the attempt worker")
	}

	log, err := postgres.OpenAttemptLog(cfg.Remote.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := log.EnsureSchema(ctx); err != nil {
		log.Close()
		return nil, err
	}

	conn, err := queue.NewConnection(cfg.Queue.URL)
	if err != nil {
		log.Close()
		return nil, err
	}

	consumer := queue.NewConsumer(conn, log.AppendAttempt, queue.ConsumerConfig{
		Workers: cfg.Queue.Workers,
		Timeout: cfg.RemoteTimeout(),
	})

	return &Worker{conn: conn, log: log, consumer: consumer}, nil
}

// Start begins consuming attempts
func (w *Worker) Start(ctx context.Context) error {
	if err := w.consumer.Start(ctx); err != nil {
		return fmt.Errorf("start attempt consumer: %w", err)
	}
	return nil
}

// Stop waits for in-flight attempts, then closes both connections
func (w *Worker) Stop() error {
	w.consumer.Stop()
	slog.Info("attempt worker stopped")
	return errors.Join(w.conn.Close(), w.log.Close())
}
