package outlet

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Meta identifies one controllable outlet. ChildID is set for child outlets
// of a power strip and empty for standalone plugs.
type Meta struct {
	Name    string
	Addr    string
	ChildID string
}

// Driver is the outlet communication contract the core consumes. Both calls
// may fail transiently; the caller decides the retry policy.
type Driver interface {
	ReadPower(ctx context.Context, name string) (float64, error)
	SetPower(ctx context.Context, name string, on bool) error
}

// Retrier wraps a driver with bounded retries and linear backoff, applied
// within a single probe tick. Exhaustion is reported to the caller; it is the
// caller's job to move the session to its error state.
type Retrier struct {
	Driver  Driver
	Limit   int
	Backoff time.Duration
}

func NewRetrier(d Driver, limit int, backoff time.Duration) *Retrier {
	return &Retrier{Driver: d, Limit: limit, Backoff: backoff}
}

func (r *Retrier) ReadPower(ctx context.Context, name string) (float64, error) {
	var watts float64
	err := r.attempt(ctx, name, "read", func() error {
		var err error
		watts, err = r.Driver.ReadPower(ctx, name)
		return err
	})
	return watts, err
}

func (r *Retrier) SetPower(ctx context.Context, name string, on bool) error {
	return r.attempt(ctx, name, "write", func() error {
		return r.Driver.SetPower(ctx, name, on)
	})
}

func (r *Retrier) attempt(ctx context.Context, name, op string, fn func() error) error {
	var err error
	for i := 0; i <= r.Limit; i++ {
		if i > 0 {
			log.Warn().Str("outlet", name).Str("op", op).Int("attempt", i).Err(err).Msg("Outlet communication failed, retrying")
			if !sleep(ctx, time.Duration(i)*r.Backoff) {
				return ctx.Err()
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// IntendedWrite is a suppressed outlet command recorded under test mode.
type IntendedWrite struct {
	Outlet string
	On     bool
	At     time.Time
}

// Simulated suppresses physical writes while passing reads through, so a test
// run makes identical decisions without switching any outlet.
type Simulated struct {
	Driver Driver

	mu       sync.Mutex
	intended []IntendedWrite
}

func NewSimulated(d Driver) *Simulated {
	return &Simulated{Driver: d}
}

func (s *Simulated) ReadPower(ctx context.Context, name string) (float64, error) {
	return s.Driver.ReadPower(ctx, name)
}

func (s *Simulated) SetPower(ctx context.Context, name string, on bool) error {
	s.mu.Lock()
	s.intended = append(s.intended, IntendedWrite{Outlet: name, On: on, At: time.Now()})
	s.mu.Unlock()
	log.Info().Str("outlet", name).Bool("on", on).Msg("Test mode: outlet command simulated, not sent")
	return nil
}

// IntendedWrites returns the commands that would have been sent.
func (s *Simulated) IntendedWrites() []IntendedWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]IntendedWrite, len(s.intended))
	copy(out, s.intended)
	return out
}
