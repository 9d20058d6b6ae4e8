package v1

import (
	"time"

	"github.com/covid19cz/erouska-push/internal/push"
)

/*
This files contains request/response structs for all endpoints. The structs have to be changed in
backward-compatible way and when it's not possible, copied to `v2` and changed there.
*/

//Message Message part shared by send requests. Alert or data must be present.
type Message struct {
	Alert            string            `json:"alert"`
	Data             map[string]string `json:"data"`
	Sound            string            `json:"sound"`
	Badge            *int              `json:"badge" validate:"omitempty,min=0"`
	ContentAvailable bool              `json:"contentAvailable"`
	TTLSeconds       int               `json:"ttlSeconds" validate:"min=0"`
	Priority         string            `json:"priority" validate:"omitempty,oneof=high normal"`
	CollapseKey      string            `json:"collapseKey"`
	DryRun           bool              `json:"dryRun"`
}

//Payload Converts the message into the dispatch payload.
func (m Message) Payload() (*push.Payload, error) {
	return push.NewPayload(m.Alert, m.Data, push.Options{
		Sound:            m.Sound,
		Badge:            m.Badge,
		ContentAvailable: m.ContentAvailable,
		TTL:              time.Duration(m.TTLSeconds) * time.Second,
		Priority:         m.Priority,
		CollapseKey:      m.CollapseKey,
		DryRun:           m.DryRun,
	})
}

//SendToGroupRequest Request for SendToGroup function
type SendToGroupRequest struct {
	Message
	Platforms    []string `json:"platforms" validate:"unique,dive,oneof=GCM APNS"`
	Environments []string `json:"environments" validate:"unique,dive,oneof=DEBUG BETA PROD"`
	UserID       string   `json:"userId"`
	DeviceIDs    []string `json:"deviceIds" validate:"dive,required"`
}

//Filter Converts the request into device filter.
func (r SendToGroupRequest) Filter() push.Filter {
	filter := push.Filter{UserID: r.UserID, DeviceIDs: r.DeviceIDs}
	for _, p := range r.Platforms {
		filter.Platforms = append(filter.Platforms, push.Platform(p))
	}
	for _, e := range r.Environments {
		filter.Environments = append(filter.Environments, push.Environment(e))
	}
	return filter
}

//SendToGroupResponse Response for SendToGroup function
type SendToGroupResponse struct {
	Total  int                  `json:"total"`
	Report *push.DispatchReport `json:"report"`
}

//SendToDeviceRequest Request for SendToDevice function
type SendToDeviceRequest struct {
	Message
	DeviceID string `json:"deviceId" validate:"required"`
}

//SendToDeviceResponse Response for SendToDevice function
type SendToDeviceResponse struct {
	DeviceID string                `json:"deviceId"`
	Outcome  push.RecipientOutcome `json:"outcome"`
}

//FetchExpiredRegistrationsResponse Response for FetchExpiredRegistrations function
type FetchExpiredRegistrationsResponse struct {
	DeviceIDs []string `json:"deviceIds"`
}
