package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/xela07ax/getmoney-core/internal/audit"
)

// WriteBatch сохраняет пачку событий переходов за одну вставку.
// Запрос собирается динамически по числу событий в пачке.
func (r *RequestRepo) WriteBatch(ctx context.Context, events []audit.TransitionEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице request_audit
	numFields := 7
	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*numFields)

	for i, e := range events {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7)

		vals = append(vals,
			e.ID, e.RequestID, e.Operation, e.Status, e.Actor, e.Amount, e.Timestamp,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO request_audit (id, request_id, operation, status, actor, amount, occurred_at) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.pool.Exec(ctx, query, vals...)
	if err != nil {
		return fmt.Errorf("postgres: failed to write audit batch: %w", err)
	}
	return nil
}
