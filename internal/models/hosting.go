package models

// HostingConnection is a named link between the management broker and a
// virtualization platform.
type HostingConnection struct {
	Name string
	Path string
}

// ResourceUnit is a concrete resource mapping (network, storage) nested under
// a hosting connection.
type ResourceUnit struct {
	HostingUnitUID string
	Name           string
	Path           string
	ConnectionName string
}

// ProvisioningTask is an in-flight long-running operation tied to a resource
// unit. While Active is true the owning unit and its hosting connection
// cannot be deleted.
type ProvisioningTask struct {
	TaskID         string
	HostingUnitUID string
	Active         bool
	Type           string
}

// ControllerInfo is the answer to the controller health query.
type ControllerInfo struct {
	MachineName string
	Role        string
	Version     string
}

// IsController reports whether the queried host carries the broker
// controller role.
func (c ControllerInfo) IsController() bool {
	return c.Role == "Controller"
}
