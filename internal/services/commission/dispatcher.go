package commission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/smartlink-billing/internal/lib/sl"
	"github.com/magabrotheeeer/smartlink-billing/internal/lib/workerpool"
	"github.com/magabrotheeeer/smartlink-billing/internal/models"
)

// PoolDispatcher выполняет задачи по комиссиям в пуле процесса.
// Задача получает контекст пула, а не запроса, поэтому переживает ответ клиенту.
type PoolDispatcher struct {
	pool *workerpool.Pool
	svc  *Service
	log  *slog.Logger
}

// NewPoolDispatcher создаёт диспетчер поверх запущенного пула.
func NewPoolDispatcher(pool *workerpool.Pool, svc *Service, log *slog.Logger) *PoolDispatcher {
	return &PoolDispatcher{pool: pool, svc: svc, log: log}
}

// Dispatch ставит задачу в очередь пула. Не блокируется.
func (d *PoolDispatcher) Dispatch(job models.CommissionJob) error {
	const op = "commission.PoolDispatcher.Dispatch"
	err := d.pool.Submit(func(ctx context.Context) {
		res, err := d.svc.Process(ctx, job)
		if err != nil {
			d.log.Error("commission job failed",
				slog.String("op", op),
				slog.String("user_id", job.UserID),
				slog.String("outcome", string(res.Outcome)),
				sl.Err(err),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

const deferTimeout = 5 * time.Second

// JobDispatcher доставляет задачу исполнителю: пулу или брокеру.
type JobDispatcher interface {
	Dispatch(job models.CommissionJob) error
}

// DeferringDispatcher при ошибке доставки оставляет задачу в журнале
// pending-строкой, которую подберёт повторная рассылка.
type DeferringDispatcher struct {
	next JobDispatcher
	svc  *Service
}

// NewDeferringDispatcher оборачивает next.
func NewDeferringDispatcher(next JobDispatcher, svc *Service) *DeferringDispatcher {
	return &DeferringDispatcher{next: next, svc: svc}
}

// Dispatch возвращает ошибку, только если задачу не удалось ни доставить, ни записать.
func (d *DeferringDispatcher) Dispatch(job models.CommissionJob) error {
	const op = "commission.DeferringDispatcher.Dispatch"

	err := d.next.Dispatch(job)
	if err == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), deferTimeout)
	defer cancel()
	if deferErr := d.svc.Defer(ctx, job, err); deferErr != nil {
		return fmt.Errorf("%s: %w", op, errors.Join(err, deferErr))
	}
	return nil
}
