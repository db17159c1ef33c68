package service

import (
	"context"
	"device-loan-api/internal/model"
	"device-loan-api/internal/repository"
	"device-loan-api/pkg/errors"
	"device-loan-api/pkg/logger"
	"device-loan-api/pkg/validation"
	stderrors "errors"
)

// RegistryService maintains the device inventory
type RegistryService struct {
	devices repository.DeviceRepository
	logger  *logger.Logger
}

func NewRegistryService(devices repository.DeviceRepository, log *logger.Logger) *RegistryService {
	if log == nil {
		log = logger.Nop()
	}
	return &RegistryService{devices: devices, logger: log}
}

// AddDevice registers a new available device. The (rubric, suffix) pair must be unused.
func (s *RegistryService) AddDevice(ctx context.Context, input model.NewDevice) (*model.Device, error) {
	if fieldErrs := validation.RequireTrimmed(map[string]*string{
		"rubric_id": &input.RubricID,
		"suffix_id": &input.SuffixID,
		"category":  &input.Category,
	}); fieldErrs != nil {
		return nil, errors.ValidationErrorWithDetails("Validation failed", fieldErrs)
	}

	device, err := s.devices.CreateDevice(ctx, input)
	if err != nil {
		if stderrors.Is(err, repository.ErrDuplicateDevice) {
			return nil, errors.ConflictError("a device with this rubric and suffix already exists").
				WithDetail("label", model.DeviceLabel(input.RubricID, input.SuffixID))
		}
		return nil, errors.DatabaseError("failed to create device", err)
	}

	s.logger.Info(s.logger.WithFields(ctx, map[string]any{"device_id": device.ID, "label": device.Label()}), "device.created")
	return device, nil
}

// DeleteDevice removes a device that is not on loan. Its past loans keep
// their device snapshot.
func (s *RegistryService) DeleteDevice(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.InvalidParameterError("device id")
	}

	if err := s.devices.DeleteDevice(ctx, id); err != nil {
		switch {
		case stderrors.Is(err, repository.ErrDeviceNotFound):
			return errors.NotFoundError("device")
		case stderrors.Is(err, repository.ErrDeviceOnLoan):
			return errors.ConflictError("device is currently on loan and cannot be deleted")
		default:
			return errors.DatabaseError("failed to delete device", err)
		}
	}

	s.logger.Info(s.logger.WithField(ctx, "device_id", id), "device.deleted")
	return nil
}

// ListDevices returns the whole inventory with each device's status
func (s *RegistryService) ListDevices(ctx context.Context) ([]model.Device, error) {
	devices, err := s.devices.ListDevices(ctx)
	if err != nil {
		return nil, errors.DatabaseError("failed to retrieve devices", err)
	}
	return devices, nil
}

// Categories returns the known device categories and their rubric prefixes
func (s *RegistryService) Categories() []model.Category {
	out := make([]model.Category, len(model.DefaultCategories))
	copy(out, model.DefaultCategories)
	return out
}
