package model

// MonitorState is the lifecycle state of the monitoring service as seen
// by consumers.
type MonitorState string

const (
	StateStopped  MonitorState = "stopped"
	StateStarting MonitorState = "starting"
	StateRunning  MonitorState = "running"
	StateStopping MonitorState = "stopping"
	StateError    MonitorState = "error"
)

// MonitoringStatus is the single authoritative status value cached in
// the communication hub. Message is set only when State is StateError.
type MonitoringStatus struct {
	State   MonitorState `json:"state"`
	Message string       `json:"message,omitempty"`
}

// ErrorStatus builds an error status with the given message.
func ErrorStatus(message string) MonitoringStatus {
	return MonitoringStatus{State: StateError, Message: message}
}
