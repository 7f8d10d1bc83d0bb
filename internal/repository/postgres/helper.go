package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/paylinks/pricechange/internal/types"
)

// StartRepositorySpan creates a new span for a repository operation
// Returns nil if Sentry is not available in the context
func StartRepositorySpan(ctx context.Context, repository, operation string, params map[string]interface{}) *sentry.Span {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		return nil
	}

	span := sentry.StartSpan(ctx, "repository."+repository+"."+operation)
	if span != nil {
		span.Description = "repository." + repository + "." + operation
		span.Op = "db.postgres"

		span.SetData("repository", repository)
		span.SetData("operation", operation)

		for k, v := range params {
			span.SetData(k, v)
		}
	}

	return span
}

// FinishSpan safely finishes a span, handling nil spans
func FinishSpan(span *sentry.Span) {
	if span != nil {
		span.Finish()
	}
}

// SetSpanError marks a span as failed and adds error information
func SetSpanError(span *sentry.Span, err error) {
	if span == nil || err == nil {
		return
	}

	span.Status = sentry.SpanStatusInternalError
	span.SetData("error", err.Error())
}

// SetSpanSuccess marks a span as successful
func SetSpanSuccess(span *sentry.Span) {
	if span != nil {
		span.Status = sentry.SpanStatusOK
	}
}

// whereBuilder accumulates AND-ed conditions with numbered placeholders.
// Each condition uses "?" for its single argument.
type whereBuilder struct {
	conditions []string
	args       []interface{}
}

func (w *whereBuilder) add(condition string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conditions = append(w.conditions, strings.Replace(condition, "?", fmt.Sprintf("$%d", len(w.args)), 1))
}

func (w *whereBuilder) sql() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conditions, " AND ")
}

// paginate appends ORDER BY and LIMIT/OFFSET. Sort columns outside allowed fall back to created_at.
func (w *whereBuilder) paginate(filter types.BaseFilter, allowed []string) string {
	sort := types.FILTER_DEFAULT_SORT
	for _, column := range allowed {
		if column == filter.GetSort() {
			sort = column
			break
		}
	}
	order := "DESC"
	if filter.GetOrder() == types.OrderAsc {
		order = "ASC"
	}

	clause := fmt.Sprintf(" ORDER BY %s %s, id %s", sort, order, order)
	if !filter.IsUnlimited() {
		w.args = append(w.args, filter.GetLimit())
		clause += fmt.Sprintf(" LIMIT $%d", len(w.args))
	}
	if filter.GetOffset() > 0 {
		w.args = append(w.args, filter.GetOffset())
		clause += fmt.Sprintf(" OFFSET $%d", len(w.args))
	}
	return clause
}

// matchedRows reports whether a conditional write touched at least one row
func matchedRows(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
