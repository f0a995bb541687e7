package shutdown

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestShutdownRegistry_Order(t *testing.T) {
	r := NewShutdownRegistry()
	var order []string
	add := func(name string, priority int) {
		r.Register(name, priority, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	add("db", PriorityDatabase)
	add("watcher", PriorityWatcher)
	add("logger", PriorityLogger)
	add("pool", PriorityPool)
	add("gpu", PriorityGPU)
	add("pool-2", PriorityPool)

	want := []string{"watcher", "pool", "pool-2", "gpu", "db", "logger"}
	if got := r.Names(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	if err := r.Shutdown(context.Background(), nil); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("ran %v, want %v", order, want)
	}
}

func TestShutdownRegistry_CollectsErrors(t *testing.T) {
	r := NewShutdownRegistry()
	errPool := errors.New("pool busy")
	errDB := errors.New("db locked")
	ran := 0

	r.Register("pool", 30, func(ctx context.Context) error { ran++; return errPool })
	r.Register("gpu", 40, func(ctx context.Context) error { ran++; return nil })
	r.Register("db", 50, func(ctx context.Context) error { ran++; return errDB })

	var steps []string
	err := r.Shutdown(context.Background(), func(name string, err error) {
		steps = append(steps, name)
	})
	if ran != 3 {
		t.Errorf("ran %d steps, want 3", ran)
	}
	if len(steps) != 3 {
		t.Errorf("onStep called %d times", len(steps))
	}
	if !errors.Is(err, errPool) || !errors.Is(err, errDB) {
		t.Errorf("Shutdown() = %v, want both errors", err)
	}
	if !strings.Contains(err.Error(), "pool: pool busy") {
		t.Errorf("error %q lacks the step name", err)
	}
}

func TestShutdownRegistry_Closed(t *testing.T) {
	r := NewShutdownRegistry()
	calls := 0
	r.Register("once", 1, func(ctx context.Context) error { calls++; return nil })
	r.Register("nil", 2, nil)

	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
	r.Shutdown(context.Background(), nil)
	r.Shutdown(context.Background(), nil)
	if calls != 1 {
		t.Errorf("step ran %d times, want 1", calls)
	}
	if !r.IsClosed() {
		t.Error("IsClosed() = false")
	}

	r.Register("late", 1, func(ctx context.Context) error { return nil })
	if r.Count() != 1 {
		t.Error("registration after Shutdown was accepted")
	}
}
