package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/agronova/tracker-backend/domains/trackers/be/repo"
)

// ErrTrackerNotFound marks a serial lookup that matched nothing.
var ErrTrackerNotFound = errors.New("tracker not found")

// Service holds the trackers-specific operations. The generic CRUD surface is
// served by the shared entity service; only what goes beyond it lives here.
type Service struct {
	trackers repo.Repository
	logger   *zap.Logger
}

// New constructs the trackers service.
func New(trackers repo.Repository, logger *zap.Logger) *Service {
	if trackers == nil {
		panic("trackers repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{trackers: trackers, logger: logger}
}

// FindBySerialNumber resolves a device by the serial printed on its label.
func (s *Service) FindBySerialNumber(ctx context.Context, serial string) (map[string]any, error) {
	record, err := s.trackers.FindBySerialNumber(ctx, serial)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrTrackerNotFound
	}
	return record, nil
}
