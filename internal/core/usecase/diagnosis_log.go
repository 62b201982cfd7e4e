package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/core/ports"
)

// DiagnosisLogUseCase persists completed-diagnosis events consumed by the worker.
type DiagnosisLogUseCase struct {
	repo ports.DiagnosisLogRepository
}

func NewDiagnosisLogUseCase(repo ports.DiagnosisLogRepository) *DiagnosisLogUseCase {
	return &DiagnosisLogUseCase{repo: repo}
}

func (uc *DiagnosisLogUseCase) Record(ctx context.Context, event domain.DiagnosisEvent) error {
	if event.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record diagnosis log", errors.New("event id is required"))
	}
	if event.CompletedAt.IsZero() {
		return domain.WrapError(domain.ErrInvalidInput, "record diagnosis log", errors.New("completed_at is required"))
	}
	if err := uc.repo.SaveDiagnosisLog(ctx, event); err != nil {
		return fmt.Errorf("save diagnosis log %s: %w", event.ID, err)
	}
	return nil
}
