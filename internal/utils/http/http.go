package http

import (
	"encoding/json"
	ers "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/covid19cz/erouska-push/internal/logging"
	"github.com/covid19cz/erouska-push/internal/utils"
	"github.com/covid19cz/erouska-push/internal/utils/errors"
	"github.com/golang/gddo/httputil/header"
	rpccode "google.golang.org/genproto/googleapis/rpc/code"
)

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// DecodeJSONBody decodes single JSON object from the body and validates it.
// based on https://www.alexedwards.net/blog/how-to-properly-parse-a-json-request-body
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Header.Get("Content-Type") != "" {
		value, _ := header.ParseValueAndParams(r.Header, "Content-Type")
		if value != "application/json" {
			msg := "Content-Type header is not application/json"
			return &errors.MalformedRequestError{Status: http.StatusUnsupportedMediaType, Msg: msg}
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1048576)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(&dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError

		switch {
		case ers.As(err, &syntaxError):
			msg := fmt.Sprintf("Request body contains badly-formed JSON (at position %d)", syntaxError.Offset)
			return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}

		case ers.Is(err, io.ErrUnexpectedEOF):
			msg := "Request body contains badly-formed JSON"
			return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}

		case ers.As(err, &unmarshalTypeError):
			msg := fmt.Sprintf("Request body contains an invalid value for the %q field (at position %d)", unmarshalTypeError.Field, unmarshalTypeError.Offset)
			return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}

		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			msg := fmt.Sprintf("Request body contains unknown field %s", fieldName)
			return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}

		case ers.Is(err, io.EOF):
			msg := "Request body must not be empty"
			return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}

		case err.Error() == "http: request body too large":
			msg := "Request body must not be larger than 1MB"
			return &errors.MalformedRequestError{Status: http.StatusRequestEntityTooLarge, Msg: msg}

		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if err != io.EOF {
		msg := "Request body must only contain a single JSON object"
		return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}
	}

	err = utils.Validate.Struct(dst)
	if err != nil {
		msg := fmt.Sprintf("Validation of the request has failed: %v", err.Error())
		return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}
	}

	return nil
}

// DecodeJSONOrReportError decodes the body, on failure sends error response and returns false.
func DecodeJSONOrReportError(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := DecodeJSONBody(w, r, dst); err != nil {
		logging.FromContext(r.Context()).Debugf("Could not decode request: %v", err)
		SendErrorResponse(w, r, err)
		return false
	}
	return true
}

// SendResponse sends the response encoded as JSON.
func SendResponse(w http.ResponseWriter, r *http.Request, response interface{}) {
	sendJSON(w, r, http.StatusOK, response)
}

// SendEmptyResponse sends empty JSON object.
func SendEmptyResponse(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, r, http.StatusOK, struct{}{})
}

// SendErrorResponse maps the error to HTTP status. Errors without code are reported as internal.
func SendErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var status = http.StatusInternalServerError
	var code = rpccode.Code_INTERNAL
	var msg = "Unknown error"

	var malformed *errors.MalformedRequestError
	var coded errors.PushError

	switch {
	case ers.As(err, &malformed):
		status, code, msg = malformed.Status, malformed.Code(), malformed.Msg
	case ers.As(err, &coded):
		code, msg = coded.Code(), coded.Error()
		status = httpStatus(code)
	}

	sendJSON(w, r, status, errorResponse{Status: code.String(), Message: msg})
}

func httpStatus(code rpccode.Code) int {
	switch code {
	case rpccode.Code_INVALID_ARGUMENT:
		return http.StatusBadRequest
	case rpccode.Code_NOT_FOUND:
		return http.StatusNotFound
	case rpccode.Code_UNAUTHENTICATED:
		return http.StatusUnauthorized
	case rpccode.Code_FAILED_PRECONDITION:
		return http.StatusPreconditionFailed
	case rpccode.Code_UNAVAILABLE:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func sendJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(r.Context()).Warnf("Could not send response: %v", err)
	}
}
