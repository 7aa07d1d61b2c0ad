package service

import (
	"context"
	"errors"
	"time"

	"zeroep-backend/internal/apperr"
	"zeroep-backend/internal/metrics"
)

const defaultLookupTimeout = 3 * time.Second

// Now é o relógio do domínio: UTC com precisão de microssegundo, que é o que o Postgres guarda
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// lookup limita o tempo de toda consulta de credencial, desafio ou canal
type lookup struct {
	timeout time.Duration
	metrics *metrics.Metrics
}

func newLookup(timeout time.Duration, m *metrics.Metrics) lookup {
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return lookup{timeout: timeout, metrics: m}
}

func (l lookup) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, l.timeout)
}

// fail converte estouro de prazo em UNAVAILABLE; o resto passa intacto
func (l lookup) fail(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		l.metrics.LookupTimeout()
		return apperr.Unavailable(err)
	}
	if apperr.CodeOf(err) == apperr.CodeUnknown {
		return apperr.Unavailable(err)
	}
	return err
}
