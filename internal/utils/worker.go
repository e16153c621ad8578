package utils

import (
	"errors"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	TASK_CHAN_SIZE = 100
)

var ErrPoolStopped = errors.New("worker pool stopped")

type WorkerFunction = func(t *tomb.Tomb, task any) error

// WorkerPool runs a fixed number of workers pulling tasks off a shared
// queue. Workers live on the tomb and stop once it starts dying.
type WorkerPool struct {
	n     int      // number of workers
	tasks chan any // pending tasks
}

func NewWorkerPool(size uint) *WorkerPool {
	if size == 0 {
		size = 1
	}
	return &WorkerPool{
		n:     int(size),
		tasks: make(chan any, TASK_CHAN_SIZE),
	}
}

func (pool *WorkerPool) Size() int {
	return pool.n
}

// Start launches the workers on the tomb. A worker returning an error kills
// the tomb.
func (pool *WorkerPool) Start(t *tomb.Tomb, work WorkerFunction) {
	for id := range pool.n {
		t.Go(func() error {
			return pool.worker(t, id, work)
		})
	}
}

// AddTask queues a task, blocking while the queue is full.
func (pool *WorkerPool) AddTask(t *tomb.Tomb, task any) error {
	select {
	case <-t.Dying():
		return ErrPoolStopped
	default:
	}
	select {
	case <-t.Dying():
		return ErrPoolStopped
	case pool.tasks <- task:
		return nil
	}
}

// TryAddTask queues a task only if there is room for it.
func (pool *WorkerPool) TryAddTask(task any) bool {
	select {
	case pool.tasks <- task:
		return true
	default:
		return false
	}
}

// Workers wait on tasks in the queue and action them.
func (pool *WorkerPool) worker(t *tomb.Tomb, id int, work WorkerFunction) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-pool.tasks:
			if err := work(t, task); err != nil {
				log.Error().Err(err).Int("id", id).Msg("worker exiting")
				return err
			}
		}
	}
}
