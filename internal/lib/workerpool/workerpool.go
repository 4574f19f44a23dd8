// Package workerpool ограниченная очередь фоновых задач для работы
// "отправил и забыл": обработчик ставит задачу и не ждёт её завершения.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

var (
	// ErrQueueFull очередь заполнена, задача не принята.
	ErrQueueFull = errors.New("worker pool queue is full")
	// ErrStopped пул остановлен.
	ErrStopped = errors.New("worker pool is stopped")
)

// Task фоновая задача. Контекст принадлежит пулу, а не вызывающему запросу.
type Task func(ctx context.Context)

// Pool фиксированное число воркеров поверх буферизованного канала.
type Pool struct {
	size    int
	timeout time.Duration
	tasks   chan Task
	log     *slog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// New создаёт пул. timeout ограничивает одну задачу (0 без ограничения).
func New(size, queueSize int, timeout time.Duration, log *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		size:    size,
		timeout: timeout,
		tasks:   make(chan Task, queueSize),
		log:     log,
	}
}

// Start запускает воркеров. Отмена ctx прерывает выполняющиеся задачи.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for i := range p.size {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Submit ставит задачу в очередь без блокировки.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop перестаёт принимать задачи и дожидается выполнения уже принятых.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(ctx, id, task)
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	const op = "workerpool.run"

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("background task panicked",
				slog.String("op", op),
				slog.Int("worker", id),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	task(ctx)
}
