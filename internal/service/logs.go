// logs.go — журнал аудита в Apps Script.
package service

import (
	"context"
	"encoding/json"

	"github.com/bigkaa/staffdesk/bff-gateway/internal/gateway"
)

const (
	defaultLogsLimit = 100
	maxLogsLimit     = 500
)

// LogsQueryInput — фильтры /logs/query. Отсутствующие фильтры уходят как null.
type LogsQueryInput struct {
	From       *string `json:"from"`
	To         *string `json:"to"`
	ActorEmail *string `json:"actor_email"`
	Action     *string `json:"action"`
	Resource   *string `json:"resource"`
	Result     *string `json:"result"`
	Limit      *int    `json:"limit"`
	Offset     *int    `json:"offset"`
}

// QueryLogs ищет записи журнала. limit по умолчанию 100, не больше 500.
func (s *SheetsService) QueryLogs(ctx context.Context, in LogsQueryInput) (json.RawMessage, error) {
	limit, offset := logsPage(in.Limit, in.Offset)
	return s.gateway.Call(ctx, gateway.ActionLogsQuery, map[string]any{
		"from":        in.From,
		"to":          in.To,
		"actor_email": in.ActorEmail,
		"action":      in.Action,
		"resource":    in.Resource,
		"result":      in.Result,
		"limit":       limit,
		"offset":      offset,
	})
}

// logsPage нормализует пагинацию журнала.
func logsPage(limit, offset *int) (int, int) {
	l := defaultLogsLimit
	if limit != nil && *limit > 0 {
		l = min(*limit, maxLogsLimit)
	}
	o := 0
	if offset != nil && *offset > 0 {
		o = *offset
	}
	return l, o
}
