package worker

import (
	"context"
	"fmt"
	"time"
)

// Task is one unit of an ordered sequence
type Task struct {
	Name string
	Run  func(ctx context.Context) error
	// Settle is followed by the sequence delay once Run returns
	Settle bool
}

// Sequence runs tasks strictly one after the other. A task starts only
// after the previous task and its delay have completed.
type Sequence struct {
	Delay time.Duration
	Sleep func(ctx context.Context, d time.Duration) error

	tasks []Task
	waits int
}

// NewSequence creates an empty sequence with the given settle delay
func NewSequence(delay time.Duration) *Sequence {
	return &Sequence{
		Delay: delay,
		Sleep: Sleep,
	}
}

// Add appends tasks to the sequence
func (s *Sequence) Add(tasks ...Task) {
	s.tasks = append(s.tasks, tasks...)
}

// Len returns the number of tasks
func (s *Sequence) Len() int {
	return len(s.tasks)
}

// Waits returns how many settle delays have completed
func (s *Sequence) Waits() int {
	return s.waits
}

// Run executes the tasks in order. The first error stops the sequence and
// is returned wrapped with the task name.
func (s *Sequence) Run(ctx context.Context) error {
	sleep := s.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	for _, task := range s.tasks {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", task.Name, err)
		}
		if err := task.Run(ctx); err != nil {
			return fmt.Errorf("%s: %w", task.Name, err)
		}
		if !task.Settle {
			continue
		}
		if err := sleep(ctx, s.Delay); err != nil {
			return fmt.Errorf("%s: %w", task.Name, err)
		}
		s.waits++
	}
	return nil
}

// Sleep pauses for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
