// Package hub implements the outbound boundary to the collector: wire
// payloads and an HTTP sender with a bounded retry budget.
package hub

import (
	"runtime"

	"github.com/google/uuid"

	"github.com/apimetry/apimetry-go/pkg/metrics"
	"github.com/apimetry/apimetry-go/pkg/resource"
)

// ClientName identifies this client library in startup payloads.
const ClientName = "apimetry-go"

// ClientVersion is the library version reported to the hub.
const ClientVersion = "1.2.0"

// PathInfo is one entry in the endpoint inventory sent at startup.
type PathInfo struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// Versions reports runtime and application versions to the hub.
type Versions struct {
	Go     string `json:"go"`
	Client string `json:"client"`
	App    string `json:"app,omitempty"`
}

// StartupPayload is the one-time handshake message establishing the
// client's identity and endpoint inventory with the hub.
type StartupPayload struct {
	InstanceUUID string     `json:"instance_uuid"`
	MessageUUID  string     `json:"message_uuid"`
	Client       string     `json:"client"`
	Framework    string     `json:"framework,omitempty"`
	Versions     Versions   `json:"versions"`
	Paths        []PathInfo `json:"paths"`
}

// NewStartupPayload assembles a handshake payload for the given instance.
func NewStartupPayload(instanceUUID, framework, appVersion string, paths []PathInfo) *StartupPayload {
	if paths == nil {
		paths = []PathInfo{}
	}
	return &StartupPayload{
		InstanceUUID: instanceUUID,
		MessageUUID:  uuid.NewString(),
		Client:       ClientName,
		Framework:    framework,
		Versions: Versions{
			Go:     runtime.Version(),
			Client: ClientVersion,
			App:    appVersion,
		},
		Paths: paths,
	}
}

// SyncPayload is one aggregation window shipped to the hub.
type SyncPayload struct {
	InstanceUUID string `json:"instance_uuid"`
	MessageUUID  string `json:"message_uuid"`
	// WindowStart and WindowEnd delimit the aggregation window in unix
	// milliseconds.
	WindowStart             int64                           `json:"window_start"`
	WindowEnd               int64                           `json:"window_end"`
	Requests                []metrics.RequestsItem          `json:"requests"`
	ValidationErrors        []metrics.ValidationErrorsItem  `json:"validation_errors"`
	ServerErrors            []metrics.ServerErrorsItem      `json:"server_errors"`
	Consumers               []metrics.ConsumersItem         `json:"consumers"`
	ValidationErrorOverflow int64                           `json:"validation_error_overflow,omitempty"`
	ServerErrorOverflow     int64                           `json:"server_error_overflow,omitempty"`
	Resource                *resource.Usage                 `json:"resource,omitempty"`
}

// NewSyncPayload wraps a snapshot in its wire envelope.
func NewSyncPayload(instanceUUID string, windowStart, windowEnd int64, snapshot metrics.Snapshot, usage *resource.Usage) *SyncPayload {
	return &SyncPayload{
		InstanceUUID:            instanceUUID,
		MessageUUID:             uuid.NewString(),
		WindowStart:             windowStart,
		WindowEnd:               windowEnd,
		Requests:                snapshot.Requests,
		ValidationErrors:        snapshot.ValidationErrors,
		ServerErrors:            snapshot.ServerErrors,
		Consumers:               snapshot.Consumers,
		ValidationErrorOverflow: snapshot.ValidationErrorOverflow,
		ServerErrorOverflow:     snapshot.ServerErrorOverflow,
		Resource:                usage,
	}
}
