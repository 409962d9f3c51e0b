// Package lifecycle defines the application operations submitted to the
// monitoring backend's admin endpoint. The structs are wire-format
// DTOs; field names follow the backend's contract.
package lifecycle

// Mode selects where an installed application executes.
type Mode string

// Execution modes accepted by the backend.
const (
	ModeLocal   Mode = "LOCAL"
	ModeCluster Mode = "CLUSTER"
)

// Operation is one admin action against the backend.
type Operation interface {
	Type() string
}

// InstallOperation registers an application for a site.
type InstallOperation struct {
	SiteID        string            `json:"siteId"`
	AppType       string            `json:"appType"`
	Mode          Mode              `json:"mode,omitempty"`
	JarPath       string            `json:"jarPath,omitempty"`
	Configuration map[string]string `json:"configuration,omitempty"`
}

// Type identifies the operation on the wire.
func (InstallOperation) Type() string { return "INSTALL" }

// UninstallOperation removes an installed application.
type UninstallOperation struct {
	UUID  string `json:"uuid,omitempty"`
	AppID string `json:"appId,omitempty"`
}

// Type identifies the operation on the wire.
func (UninstallOperation) Type() string { return "UNINSTALL" }

// StartOperation starts an installed application.
type StartOperation struct {
	UUID  string `json:"uuid,omitempty"`
	AppID string `json:"appId,omitempty"`
}

// Type identifies the operation on the wire.
func (StartOperation) Type() string { return "START" }

// StopOperation stops a running application.
type StopOperation struct {
	UUID  string `json:"uuid,omitempty"`
	AppID string `json:"appId,omitempty"`
}

// Type identifies the operation on the wire.
func (StopOperation) Type() string { return "STOP" }

// CheckStatusOperation asks the backend for an application's state.
type CheckStatusOperation struct {
	UUID  string `json:"uuid,omitempty"`
	AppID string `json:"appId,omitempty"`
}

// Type identifies the operation on the wire.
func (CheckStatusOperation) Type() string { return "CHECK_STATUS" }
