package domain

import "time"

type AuditEventType string

const (
	AuditEventScanAccepted   AuditEventType = "scan.accepted"
	AuditEventScanRejected   AuditEventType = "scan.rejected"
	AuditEventTagRegistered  AuditEventType = "tag.registered"
	AuditEventTagImported    AuditEventType = "tag.imported"
	AuditEventTagDeactivated AuditEventType = "tag.deactivated"
	AuditEventTagReactivated AuditEventType = "tag.reactivated"
)

type AuditResult string

const (
	AuditResultSuccess AuditResult = "success"
	AuditResultFailure AuditResult = "failure"
)

type AuditEvent struct {
	ID        string
	EventType AuditEventType
	TargetID  string
	Result    AuditResult
	ErrorCode string
	Payload   map[string]any
	CreatedAt time.Time
}
