package sendpush

import (
	"context"
	"errors"
	"net/http"

	"github.com/covid19cz/erouska-push/internal/logging"
	"github.com/covid19cz/erouska-push/internal/push"
	"github.com/covid19cz/erouska-push/internal/secrets"
	errs "github.com/covid19cz/erouska-push/internal/utils/errors"
	httputils "github.com/covid19cz/erouska-push/internal/utils/http"
	v1 "github.com/covid19cz/erouska-push/pkg/api/v1"
)

//Sender Dispatch operations served over HTTP.
type Sender interface {
	SendToGroup(ctx context.Context, filter push.Filter, payload *push.Payload) (*push.DispatchReport, error)
	SendToSingleDevice(ctx context.Context, deviceID string, payload *push.Payload) (push.RecipientOutcome, error)
	FetchExpiredRegistrations(ctx context.Context) ([]string, error)
}

//Handler HTTP handlers of the push backend.
type Handler struct {
	sender       Sender
	secrets      secrets.Manager
	apiKeySecret string
}

//NewHandler Creates handlers. Requests must carry the value of apiKeySecret in the `apikey` query parameter.
func NewHandler(sender Sender, secretManager secrets.Manager, apiKeySecret string) *Handler {
	return &Handler{sender: sender, secrets: secretManager, apiKeySecret: apiKeySecret}
}

//Register Mounts the handlers on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/SendToGroup", h.SendToGroup)
	mux.HandleFunc("/SendToDevice", h.SendToDevice)
	mux.HandleFunc("/FetchExpiredRegistrations", h.FetchExpiredRegistrations)
}

//SendToGroup Sends message to all active devices matching the filter.
func (h *Handler) SendToGroup(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()
	logger := logging.FromContext(ctx).Named("SendToGroup")

	if !h.authenticate(w, r) {
		return
	}

	var request v1.SendToGroupRequest

	if !httputils.DecodeJSONOrReportError(w, r, &request) {
		return
	}

	payload, ok := toPayload(w, r, request.Message)
	if !ok {
		return
	}

	report, err := h.sender.SendToGroup(ctx, request.Filter(), payload)
	if err != nil {
		logger.Warnf("Group dispatch failed: %v", err)
		httputils.SendErrorResponse(w, r, err)
		return
	}

	logger.Infof("Group dispatch finished: delivered %v, invalid %v, replaced %v, failed %v, skipped %v",
		report.Delivered, report.Invalid, report.Replaced, report.Failed, report.Skipped)

	httputils.SendResponse(w, r, v1.SendToGroupResponse{Total: report.Total(), Report: report})
}

//SendToDevice Sends message to one device.
func (h *Handler) SendToDevice(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()
	logger := logging.FromContext(ctx).Named("SendToDevice")

	if !h.authenticate(w, r) {
		return
	}

	var request v1.SendToDeviceRequest

	if !httputils.DecodeJSONOrReportError(w, r, &request) {
		return
	}

	payload, ok := toPayload(w, r, request.Message)
	if !ok {
		return
	}

	outcome, err := h.sender.SendToSingleDevice(ctx, request.DeviceID, payload)
	if err != nil {
		logger.Debugf("Dispatch to device %v failed: %v", request.DeviceID, err)
		httputils.SendErrorResponse(w, r, err)
		return
	}

	logger.Debugf("Device %v: %v", request.DeviceID, outcome.Kind)

	httputils.SendResponse(w, r, v1.SendToDeviceResponse{DeviceID: request.DeviceID, Outcome: outcome})
}

//FetchExpiredRegistrations Returns ids of devices whose APNS tokens were reported as expired.
func (h *Handler) FetchExpiredRegistrations(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()
	logger := logging.FromContext(ctx).Named("FetchExpiredRegistrations")

	if !h.authenticate(w, r) {
		return
	}

	ids, err := h.sender.FetchExpiredRegistrations(ctx)
	if err != nil {
		logger.Warnf("Could not fetch expired registrations: %v", err)
		httputils.SendErrorResponse(w, r, err)
		return
	}

	if ids == nil {
		ids = []string{}
	}

	httputils.SendResponse(w, r, v1.FetchExpiredRegistrationsResponse{DeviceIDs: ids})
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) bool {
	logger := logging.FromContext(r.Context()).Named("sendpush.authenticate")

	apikey, err := h.secrets.Get(r.Context(), h.apiKeySecret)
	if err != nil {
		logger.Warnf("Could not obtain api key: %v", err)
		httputils.SendErrorResponse(w, r, &errs.UnknownError{Msg: "Could not obtain api key"})
		return false
	}

	providedAPIKeys := r.URL.Query()["apikey"]
	if len(providedAPIKeys) != 1 || providedAPIKeys[0] != string(apikey) {
		httputils.SendErrorResponse(w, r, &errs.UnauthorizedError{Msg: "Bad api key"})
		return false
	}

	return true
}

func toPayload(w http.ResponseWriter, r *http.Request, message v1.Message) (*push.Payload, bool) {
	payload, err := message.Payload()
	if errors.Is(err, push.ErrEmptyPayload) || errors.Is(err, push.ErrReservedKey) {
		httputils.SendErrorResponse(w, r, &errs.MalformedRequestError{Status: http.StatusBadRequest, Msg: err.Error()})
		return nil, false
	}
	if err != nil {
		httputils.SendErrorResponse(w, r, err)
		return nil, false
	}
	return payload, true
}
