package httpapi

import (
	"errors"

	"github.com/mkoziy/contratos/crmsync/internal/apperror"
	"github.com/mkoziy/contratos/crmsync/internal/contracts"
	"github.com/mkoziy/contratos/crmsync/internal/repositories"
	"github.com/mkoziy/contratos/crmsync/internal/syncer"
)

// toAppError translates domain errors into the API error shape.
func toAppError(err error) *apperror.AppError {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr
	}

	var validation *contracts.ValidationError
	if errors.As(err, &validation) {
		return apperror.NewMissingFields(validation.Missing)
	}

	var runErr *syncer.RunError
	if errors.As(err, &runErr) {
		var appErr *apperror.AppError
		if errors.Is(err, syncer.ErrSourceUnavailable) {
			appErr = apperror.NewSourceUnavailable(err).WithDetail("run_id", runErr.RunID)
		} else {
			appErr = apperror.NewSyncFailed(runErr.RunID, err)
		}
		return appErr.
			WithDetail("processed", runErr.Counts.Processed).
			WithDetail("new", runErr.Counts.New).
			WithDetail("updated", runErr.Counts.Updated)
	}

	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return apperror.NewNotFound("record", nil).WithCause(err)
	case errors.Is(err, repositories.ErrStaleStatus):
		return apperror.NewConcurrentModification("record", nil).WithCause(err)
	case errors.Is(err, contracts.ErrForbidden):
		return apperror.NewForbidden("No tiene permisos sobre este contrato")
	case errors.Is(err, contracts.ErrInvalidTransition):
		return apperror.NewBusinessRule(apperror.CodeInvalidTransition, err.Error())
	case errors.Is(err, contracts.ErrNoCustomerEmail):
		return apperror.NewBusinessRule(apperror.CodeNoCustomerEmail, "El contrato no tiene email del cliente")
	case errors.Is(err, contracts.ErrNotificationFailed):
		return apperror.NewNotificationFailed(err)
	case errors.Is(err, syncer.ErrInvalidWindow):
		return apperror.NewInvalidInput("window", err.Error())
	}
	return apperror.NewInternal(err)
}
