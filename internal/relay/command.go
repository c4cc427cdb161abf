package relay

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/domain"
)

// CommandType names what a device asks for.
type CommandType string

// Supported command types
const (
	CommandRegister        CommandType = "register"
	CommandGenerateContent CommandType = "generate_content"
	CommandPublish         CommandType = "publish"
	CommandCancel          CommandType = "cancel"
)

// Command is an inbound request from a device.
type Command struct {
	DeviceID    string          `json:"device_id"    validate:"required,max=128"`
	CommandType CommandType     `json:"command_type" validate:"required,oneof=register generate_content publish cancel"`
	Params      json.RawMessage `json:"params,omitempty"`
}

// Ack statuses
const (
	StatusAccepted   = "accepted"
	StatusRegistered = "registered"
	StatusCancelling = "cancelling"
	StatusRejected   = "rejected"
)

// CommandAck is the immediate answer to a command. Task results arrive
// later through a push.
type CommandAck struct {
	Accepted     bool       `json:"accepted"`
	TaskID       *uuid.UUID `json:"task_id,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`

	// Err is the cause of a rejection, for callers that map it to a
	// transport status.
	Err error `json:"-"`
}

type registerParams struct {
	Platform    string `json:"platform"     validate:"required,max=32"`
	PushChannel string `json:"push_channel" validate:"max=512"`
}

// generateParams asks for new content. With an account the content is
// published once generated.
type generateParams struct {
	GenerationConfig domain.GenerationConfig `json:"generation_config"`
	AccountID        *uuid.UUID              `json:"account_id,omitempty"`
	PublishConfig    domain.PublishConfig    `json:"publish_config"`
}

type publishParams struct {
	ContentID     uuid.UUID            `json:"content_id"     validate:"required"`
	AccountID     uuid.UUID            `json:"account_id"     validate:"required"`
	PublishConfig domain.PublishConfig `json:"publish_config"`
}

type cancelParams struct {
	TaskID uuid.UUID `json:"task_id" validate:"required"`
}
