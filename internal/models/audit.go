package models

// OperationType classifies an audit operation for the configuration-logging
// subsystem.
type OperationType string

const (
	// OperationTypeAdminActivity marks an administrative action such as
	// stopping a task.
	OperationTypeAdminActivity OperationType = "AdminActivity"
	// OperationTypeConfigurationChange marks a change to configured objects
	// such as deleting a hosting connection.
	OperationTypeConfigurationChange OperationType = "ConfigurationChange"
)

// AuditOperation brackets one mutating action in the configuration-logging
// subsystem. It is opened before the call and closed with the final success
// flag afterwards.
type AuditOperation struct {
	ID        string
	Text      string
	Source    string
	Type      OperationType
	TargetIDs []string
}
