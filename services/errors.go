package services

import "github.com/talentflow/ats-backend/shared"

var (
	ErrJobNotFound = shared.NewServiceError(shared.ErrorCategoryResource, "JOB_NOT_FOUND",
		"job not found", "services", "lookup", false, nil)
	ErrJobClosed = shared.NewServiceError(shared.ErrorCategoryConflict, "JOB_CLOSED",
		"job is not accepting applications", "services", "lookup", false, nil)
	ErrApplicationNotFound = shared.NewServiceError(shared.ErrorCategoryResource, "APPLICATION_NOT_FOUND",
		"application not found", "services", "lookup", false, nil)
	ErrForeignTenant = shared.NewServiceError(shared.ErrorCategoryAuthorization, "FOREIGN_TENANT",
		"resource belongs to another company", "services", "tenant", false, nil)
	ErrIntakeDisabled = shared.NewServiceError(shared.ErrorCategoryResource, "INTAKE_DISABLED",
		"public applications are disabled", "PublicIntakeService", "Submit", false, nil)
)

func validationError(code, message, serviceName, operation string) *shared.ServiceError {
	return shared.NewServiceError(shared.ErrorCategoryValidation, code, message, serviceName, operation, false, nil)
}
