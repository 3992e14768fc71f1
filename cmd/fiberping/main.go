// Command fiberping drives a single cooperative scheduler through a
// fixed number of ping-pong handoffs between two fibers sharing a mutex
// and a pair of condition variables, printing progress the way a small
// diagnostic tool would, and exits once both fibers report done or a
// deadline passes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evloop/gofiber"
	"github.com/evloop/gofiber/internal/hostloop"
	"github.com/evloop/gofiber/internal/logging"
)

func main() {
	iterations := flag.Int("iterations", 1000, "number of ping-pong handoffs to run")
	timeout := flag.Duration("timeout", 10*time.Second, "abort if the run hasn't finished by this deadline")
	verbose := flag.Bool("verbose", false, "log every handoff instead of only the summary")
	flag.Parse()

	level := logging.LevelInfo
	if *verbose {
		level = logging.LevelDebug
	}
	logger := logging.NewLogger(&logging.Config{Level: level, Output: os.Stderr})
	logging.SetDefault(logger)

	if err := run(*iterations, *timeout, logger); err != nil {
		logger.Error("fiberping failed", "err", err)
		os.Exit(1)
	}
}

func run(iterations int, timeout time.Duration, logger *logging.Logger) error {
	loop := hostloop.New()
	s := fiber.NewScheduler(fiber.Config{
		Loop:   loop,
		Logger: logger,
	})

	m := fiber.NewMutex()
	condA := fiber.NewCondVar() // A waits here for its turn (n odd)
	condB := fiber.NewCondVar() // B waits here for its turn (n even)

	n := 0
	start := time.Now()

	aID, err := s.Spawn("A", func(s *fiber.Scheduler, _ any) {
		if err := s.Lock(m); err != nil {
			logger.Error("A: lock failed", "err", err)
			return
		}
		defer s.Unlock(m)
		for n < iterations {
			for n%2 != 0 {
				if err := s.CondWait(condA, m); err != nil {
					logger.Error("A: wait failed", "err", err)
					return
				}
			}
			if n >= iterations {
				break
			}
			n++
			logger.Debug("A advanced counter", "n", n)
			s.Signal(condB)
		}
	}, nil, 0)
	if err != nil {
		return fmt.Errorf("spawn A: %w", err)
	}

	bID, err := s.Spawn("B", func(s *fiber.Scheduler, _ any) {
		if err := s.Lock(m); err != nil {
			logger.Error("B: lock failed", "err", err)
			return
		}
		defer s.Unlock(m)
		for n < iterations {
			for n%2 != 1 {
				if n >= iterations {
					break
				}
				if err := s.CondWait(condB, m); err != nil {
					logger.Error("B: wait failed", "err", err)
					return
				}
			}
			if n >= iterations {
				break
			}
			n++
			logger.Debug("B advanced counter", "n", n)
			s.Signal(condA)
		}
	}, nil, 0)
	if err != nil {
		return fmt.Errorf("spawn B: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	if err := s.Transfer(aID); err != nil {
		return fmt.Errorf("transfer A: %w", err)
	}
	if err := s.Transfer(bID); err != nil {
		return fmt.Errorf("transfer B: %w", err)
	}

	if err := loop.Run(ctx); err != nil {
		return fmt.Errorf("loop stopped before the ping-pong finished at n=%d: %w", n, err)
	}

	if n != iterations {
		return fmt.Errorf("ping-pong ended at n=%d, want %d", n, iterations)
	}

	logger.Info("ping-pong complete", "iterations", n, "elapsed", time.Since(start))
	return nil
}
