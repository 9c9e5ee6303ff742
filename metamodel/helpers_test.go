package metamodel_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/metamodel-go/metamodel"
)

var errBoom = errors.New("boom")

var fixedNow = time.Date(2017, time.March, 31, 14, 30, 0, 123456789, time.UTC)

// stack is the toy model used throughout the tests: a list of pushed items.
type stack struct {
	items []string
}

func loadStack(_ context.Context, source string) (metamodel.Model, error) {
	if strings.Contains(source, "missing") {
		return nil, fmt.Errorf("open %s: no such file", source)
	}

	return &stack{}, nil
}

func stackOf(t *testing.T, mm *metamodel.MetaModel) *stack {
	t.Helper()

	s, ok := mm.Model().(*stack)
	require.True(t, ok, "model is not a *stack")

	return s
}

// stackRegistry builds the "stack_ops" registry.
func stackRegistry(t *testing.T) *metamodel.Registry {
	t.Helper()

	reg := metamodel.NewRegistry("stack_ops")

	require.NoError(t, reg.RegisterFunc("push", func(_ context.Context, mm *metamodel.MetaModel, args metamodel.Args, _ metamodel.Kwargs) error {
		item, err := args.String(0)
		if err != nil {
			return err
		}
		s := mm.Model().(*stack)
		s.items = append(s.items, item)

		return nil
	}))

	require.NoError(t, reg.RegisterFunc("pop", func(_ context.Context, mm *metamodel.MetaModel, _ metamodel.Args, _ metamodel.Kwargs) error {
		s := mm.Model().(*stack)
		if len(s.items) == 0 {
			return errors.New("stack is empty")
		}
		s.items = s.items[:len(s.items)-1]

		return nil
	}))

	require.NoError(t, reg.RegisterFunc("solve", func(_ context.Context, mm *metamodel.MetaModel, _ metamodel.Args, kwargs metamodel.Kwargs) error {
		mm.IncrementSolveCount()
		mm.SetOptimal(!kwargs.Has("infeasible"))

		return nil
	}))

	require.NoError(t, reg.RegisterFunc("fail", func(context.Context, *metamodel.MetaModel, metamodel.Args, metamodel.Kwargs) error {
		return errBoom
	}))

	return reg
}

// otherRegistry builds "other_ops", whose "push" shadows nothing when stack_ops is attached first.
func otherRegistry(t *testing.T) *metamodel.Registry {
	t.Helper()

	reg := metamodel.NewRegistry("other_ops")

	require.NoError(t, reg.RegisterFunc("push", func(_ context.Context, mm *metamodel.MetaModel, args metamodel.Args, _ metamodel.Kwargs) error {
		item, err := args.String(0)
		if err != nil {
			return err
		}
		s := mm.Model().(*stack)
		s.items = append(s.items, "other:"+item)

		return nil
	}))

	require.NoError(t, reg.RegisterFunc("clear", func(_ context.Context, mm *metamodel.MetaModel, _ metamodel.Args, _ metamodel.Kwargs) error {
		mm.Model().(*stack).items = nil
		return nil
	}))

	return reg
}

func newStackMetaModel(t *testing.T, options ...metamodel.Option) *metamodel.MetaModel {
	t.Helper()

	defaults := []metamodel.Option{
		metamodel.WithLoader(metamodel.ModelLoaderFunc(loadStack)),
		metamodel.WithClock(metamodel.FixedClock(fixedNow)),
	}

	mm, err := metamodel.New(context.Background(), "models/stack.lp", append(defaults, options...)...)
	require.NoError(t, err)

	return mm
}

// memoryStore is a SnapshotStore keeping snapshots in a map.
type memoryStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	saveErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (s *memoryStore) Save(_ context.Context, key string, data []byte) error {
	if s.saveErr != nil {
		return s.saveErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = append([]byte(nil), data...)

	return nil
}

func (s *memoryStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", metamodel.ErrSnapshotNotFound, key)
	}

	return data, nil
}

func (s *memoryStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
