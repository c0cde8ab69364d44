package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/talentflow/ats-backend/models"
)

// LedgerAuditLogger writes structured audit lines for application ledger writes
type LedgerAuditLogger struct {
	serviceName string
}

// NewLedgerAuditLogger creates a new audit logger
func NewLedgerAuditLogger() *LedgerAuditLogger {
	return &LedgerAuditLogger{
		serviceName: "application-ledger",
	}
}

// AuditEntry represents a single audit log entry
type AuditEntry struct {
	Timestamp   time.Time              `json:"timestamp"`
	ServiceName string                 `json:"service_name"`
	Operation   string                 `json:"operation"`
	EntityType  string                 `json:"entity_type"`
	EntityID    string                 `json:"entity_id"`
	UserID      *string                `json:"user_id,omitempty"`
	Changes     map[string]interface{} `json:"changes,omitempty"`
	Success     bool                   `json:"success"`
	ErrorMsg    *string                `json:"error_msg,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// LogApplicationCreation records a new application and its opening stage
func (a *LedgerAuditLogger) LogApplicationCreation(app *models.Application, changedBy *uuid.UUID) {
	a.logAuditEntry(AuditEntry{
		Timestamp:   time.Now(),
		ServiceName: a.serviceName,
		Operation:   "CREATE",
		EntityType:  "application",
		EntityID:    app.ApplicationID.String(),
		UserID:      actorString(changedBy),
		Success:     true,
		Metadata: map[string]interface{}{
			"job_id":       app.JobID.String(),
			"candidato_id": app.CandidateID.String(),
			"estado":       app.Status,
		},
	})
}

// LogStageTransition records a status change. Calls with equal statuses are
// not transitions and are logged at debug level only.
func (a *LedgerAuditLogger) LogStageTransition(applicationID uuid.UUID, previous *models.ApplicationStatus, next models.ApplicationStatus, changedBy *uuid.UUID) {
	if previous != nil && *previous == next {
		logrus.WithFields(logrus.Fields{
			"component":      "LedgerAuditLogger",
			"application_id": applicationID,
			"estado":         next,
		}).Debug("Status unchanged, no stage history written")
		return
	}

	changes := map[string]interface{}{"after": next}
	if previous != nil {
		changes["before"] = *previous
	}

	a.logAuditEntry(AuditEntry{
		Timestamp:   time.Now(),
		ServiceName: a.serviceName,
		Operation:   "STAGE_CHANGE",
		EntityType:  "application",
		EntityID:    applicationID.String(),
		UserID:      actorString(changedBy),
		Changes:     map[string]interface{}{"estado": changes},
		Success:     true,
	})
}

// LogFailure records a ledger write that was rolled back
func (a *LedgerAuditLogger) LogFailure(operation string, entityID string, changedBy *uuid.UUID, err error) {
	msg := err.Error()
	a.logAuditEntry(AuditEntry{
		Timestamp:   time.Now(),
		ServiceName: a.serviceName,
		Operation:   operation,
		EntityType:  "application",
		EntityID:    entityID,
		UserID:      actorString(changedBy),
		Success:     false,
		ErrorMsg:    &msg,
	})
}

func actorString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// logAuditEntry logs the audit entry using structured logging
func (a *LedgerAuditLogger) logAuditEntry(entry AuditEntry) {
	logFields := logrus.Fields{
		"audit_timestamp": entry.Timestamp,
		"service_name":    entry.ServiceName,
		"operation":       entry.Operation,
		"entity_type":     entry.EntityType,
		"entity_id":       entry.EntityID,
		"success":         entry.Success,
	}

	if entry.UserID != nil {
		logFields["user_id"] = *entry.UserID
	}

	if entry.ErrorMsg != nil {
		logFields["error_msg"] = *entry.ErrorMsg
	}

	if len(entry.Changes) > 0 {
		logFields["changes"] = entry.Changes
	}

	for key, value := range entry.Metadata {
		logFields["meta_"+key] = value
	}

	if entry.Success {
		logrus.WithFields(logFields).Info("Audit log entry")
	} else {
		logrus.WithFields(logFields).Warn("Audit log entry - operation failed")
	}
}
