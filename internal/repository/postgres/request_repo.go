package postgres

/*
Файл request_repo.go содержит операции над заявками на перевод денег.

Ключевая гарантия корректности всей системы — условный UPDATE в Transition:
load-validate-write схлопнут в один атомарный оператор
(WHERE id = $x AND status = ANY(allowed)), поэтому из двух гонящихся
переходов по одному id успешным будет ровно один, второй получит 0 строк.
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/getmoney-core/internal/domain"
)

const requestColumns = `id, requester_id, amount, status, requester_comment, approver_comment,
	eta, requester_msg_id, approver_msg_id, created_at, updated_at`

// scanRequest разбирает одну строку requests в доменную структуру.
// NULL-колонки маппятся в указатели напрямую — pgx это умеет.
func scanRequest(row pgx.Row) (*domain.Request, error) {
	var req domain.Request
	err := row.Scan(
		&req.ID,
		&req.RequesterID,
		&req.Amount,
		&req.Status,
		&req.RequesterComment,
		&req.ApproverComment,
		&req.Eta,
		&req.RequesterMsgID,
		&req.ApproverMsgID,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Create вставляет новую заявку в статусе pending.
// Таймстемпы и id назначает база; заполняем их обратно в структуру.
func (r *RequestRepo) Create(ctx context.Context, req *domain.Request) error {
	query := `
		INSERT INTO requests (requester_id, amount, status, requester_comment)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		req.RequesterID, req.Amount, req.Status, req.RequesterComment,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create request: %w", err)
	}
	return nil
}

// GetByID — точечная выборка заявки.
func (r *RequestRepo) GetByID(ctx context.Context, id int64) (*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to get request: %w", err)
	}
	return req, nil
}

// FindActive возвращает заявки в четырех активных статусах, новые сверху.
// requesterID == nil — без фильтра (экран одобряющего).
func (r *RequestRepo) FindActive(ctx context.Context, requesterID *int64) ([]*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests
		WHERE status = ANY($1)`

	active := []string{
		string(domain.StatusPending), string(domain.StatusApproved),
		string(domain.StatusSent), string(domain.StatusDisputed),
	}

	args := []interface{}{active}
	if requesterID != nil {
		query += ` AND requester_id = $2`
		args = append(args, *requesterID)
	}
	query += ` ORDER BY created_at DESC`

	return r.queryRequests(ctx, query, args...)
}

// FindForMonth возвращает все заявки участника, созданные в интервале
// [from, to). Границы месяца считает сервис в своей таймзоне.
// Сортировка двухкорзинная: сначала активные (новые сверху), затем
// финальные (новые сверху) — на этот порядок завязан месячный экран бота.
func (r *RequestRepo) FindForMonth(ctx context.Context, requesterID int64, from, to time.Time) ([]*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests
		WHERE requester_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY status = ANY($4), created_at DESC`

	final := []string{
		string(domain.StatusConfirmed), string(domain.StatusRejected),
		string(domain.StatusCancelled),
	}

	return r.queryRequests(ctx, query, requesterID, from, to, final)
}

// Transition атомарно переводит заявку в статус target, если текущий
// статус входит в allowed. eta и approverComment пишутся только когда
// переданы (COALESCE), затирания однажды установленного ETA не происходит.
// Возвращает (nil, nil), если заявки нет или статус уже не подходит —
// для сервиса это один и тот же исход "операция отклонена".
func (r *RequestRepo) Transition(
	ctx context.Context,
	id int64,
	target domain.RequestStatus,
	allowed []domain.RequestStatus,
	eta *time.Time,
	approverComment *string,
) (*domain.Request, error) {
	query := `
		UPDATE requests
		SET status = $2,
		    eta = COALESCE($3, eta),
		    approver_comment = COALESCE($4, approver_comment),
		    updated_at = NOW()
		WHERE id = $1 AND status = ANY($5)
		RETURNING ` + requestColumns

	sources := make([]string, 0, len(allowed))
	for _, s := range allowed {
		sources = append(sources, string(s))
	}

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id, target, eta, approverComment, sources))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Либо id неверный, либо (чаще) решение уже принято другой стороной
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to transition request: %w", err)
	}
	return req, nil
}

// UpdateMessageRefs сохраняет ID сообщений чат-транспорта.
// Никакой семантики переходов: отсутствие заявки — тихий no-op.
func (r *RequestRepo) UpdateMessageRefs(ctx context.Context, id int64, requesterMsgID, approverMsgID *int64) error {
	query := `
		UPDATE requests
		SET requester_msg_id = COALESCE($2, requester_msg_id),
		    approver_msg_id = COALESCE($3, approver_msg_id),
		    updated_at = NOW()
		WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id, requesterMsgID, approverMsgID)
	if err != nil {
		return fmt.Errorf("postgres: failed to update message refs: %w", err)
	}
	return nil
}

func (r *RequestRepo) queryRequests(ctx context.Context, query string, args ...interface{}) ([]*domain.Request, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query requests: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan request: %w", err)
		}
		results = append(results, req)
	}

	// Проверка на ошибки итерации (стандарт качества pgx)
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}
