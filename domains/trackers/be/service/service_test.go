package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	findBySerialFn func(ctx context.Context, serial string) (map[string]any, error)
}

func (m *mockRepository) FindBySerialNumber(ctx context.Context, serial string) (map[string]any, error) {
	if m.findBySerialFn == nil {
		panic("findBySerialFn not configured")
	}
	return m.findBySerialFn(ctx, serial)
}

func TestFindBySerialNumberSuccess(t *testing.T) {
	t.Parallel()

	repository := &mockRepository{}
	repository.findBySerialFn = func(ctx context.Context, serial string) (map[string]any, error) {
		require.Equal(t, "SN-42", serial)
		return map[string]any{"id": int64(1), "serial_number": "SN-42"}, nil
	}

	svc := New(repository, nil)

	record, err := svc.FindBySerialNumber(context.Background(), "SN-42")
	require.NoError(t, err)
	require.Equal(t, "SN-42", record["serial_number"])
}

func TestFindBySerialNumberMiss(t *testing.T) {
	t.Parallel()

	repository := &mockRepository{}
	repository.findBySerialFn = func(ctx context.Context, serial string) (map[string]any, error) {
		return nil, nil
	}

	svc := New(repository, nil)

	_, err := svc.FindBySerialNumber(context.Background(), "SN-MISSING")
	require.ErrorIs(t, err, ErrTrackerNotFound)
}
