package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RequestRepo — единственный репозиторий сервиса: заявки, участники
// и пакетная запись аудита живут на одном пуле соединений.
type RequestRepo struct {
	pool *pgxpool.Pool
}

// NewRequestRepo создает пул pgx по настройкам из конфига.
func NewRequestRepo(ctx context.Context, connString string, maxConns, minConns int32) (*RequestRepo, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid connection string: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}
	return &RequestRepo{pool: pool}, nil
}

// Ping проверяет доступность базы при старте
func (r *RequestRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close освобождает пул при остановке сервиса
func (r *RequestRepo) Close() {
	r.pool.Close()
}
