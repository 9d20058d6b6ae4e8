package http

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/covid19cz/erouska-push/internal/utils/errors"
	"github.com/stretchr/testify/assert"
)

type testRequest struct {
	Field1 string `json:"field1" validate:"required"`
	Field2 int    `json:"field2" validate:"required"`
}

type testResponse struct {
	Result string `json:"result"`
}

func newRequest(t *testing.T, body string, contentType string) *http.Request {
	req, err := http.NewRequest("POST", "/Url", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Add("Content-Type", contentType)
	}
	return req
}

/* DecodeJSONBody: */

func TestDecodeJSONBodyOk(t *testing.T) {
	req := newRequest(t, `{"field1": "ahoj", "field2": 42}`, "application/json")
	rr := httptest.NewRecorder()

	var request testRequest

	if err := DecodeJSONBody(rr, req, &request); err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, testRequest{Field1: "ahoj", Field2: 42}, request)
	assert.Equal(t, 0, rr.Body.Len())
}

func TestDecodeJSONBodyMissingContentType(t *testing.T) {
	req := newRequest(t, `{"field1": "ahoj", "field2": 42}`, "")

	var request testRequest

	assert.NoError(t, DecodeJSONBody(httptest.NewRecorder(), req, &request))
	assert.Equal(t, "ahoj", request.Field1)
}

func TestDecodeJSONBodyBadContentType(t *testing.T) {
	req := newRequest(t, `{"field1": "ahoj", "field2": 42}`, "text/plain")

	var request testRequest

	err := DecodeJSONBody(httptest.NewRecorder(), req, &request)
	assert.Equal(t, &errors.MalformedRequestError{Status: http.StatusUnsupportedMediaType, Msg: "Content-Type header is not application/json"}, err)
}

func TestDecodeJSONBodyUnknownField(t *testing.T) {
	req := newRequest(t, `{"field1": "ahoj", "field2": 42, "field3": true}`, "application/json")

	var request testRequest

	err := DecodeJSONBody(httptest.NewRecorder(), req, &request)
	assert.Equal(t, &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: `Request body contains unknown field "field3"`}, err)
}

func TestDecodeJSONBodyMissingField(t *testing.T) {
	req := newRequest(t, `{"field1": "ahoj"}`, "application/json")

	var request testRequest

	err := DecodeJSONBody(httptest.NewRecorder(), req, &request)
	if assert.IsType(t, &errors.MalformedRequestError{}, err) {
		assert.Equal(t, http.StatusBadRequest, err.(*errors.MalformedRequestError).Status)
	}
}

func TestDecodeJSONOrReportErrorMissingField(t *testing.T) {
	req := newRequest(t, `{"field2": 42}`, "application/json")
	rr := httptest.NewRecorder()

	var request testRequest

	assert.False(t, DecodeJSONOrReportError(rr, req, &request))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"INVALID_ARGUMENT"`)
}

func TestSendResponse(t *testing.T) {
	rr := httptest.NewRecorder()

	SendResponse(rr, newRequest(t, "", ""), testResponse{Result: "ok"})

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"result": "ok"}`, rr.Body.String())
}

func TestSendEmptyResponse(t *testing.T) {
	rr := httptest.NewRecorder()

	SendEmptyResponse(rr, newRequest(t, "", ""))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{}`, rr.Body.String())
}

func TestSendErrorResponse(t *testing.T) {
	tables := []struct {
		err    error
		status int
		body   string
	}{
		{&errors.NotFoundError{Msg: "nope"}, http.StatusNotFound, `{"status": "NOT_FOUND", "message": "nope"}`},
		{errors.NewConfigurationError("no transport"), http.StatusPreconditionFailed, `{"status": "FAILED_PRECONDITION", "message": "configuration error: no transport"}`},
		{&errors.UnauthorizedError{Msg: "Bad api key"}, http.StatusUnauthorized, `{"status": "UNAUTHENTICATED", "message": "Bad api key"}`},
		{fmt.Errorf("wrapped: %w", &errors.NotFoundError{Msg: "deep"}), http.StatusNotFound, `{"status": "NOT_FOUND", "message": "deep"}`},
		{fmt.Errorf("database is on fire"), http.StatusInternalServerError, `{"status": "INTERNAL", "message": "Unknown error"}`},
	}

	for _, table := range tables {
		rr := httptest.NewRecorder()

		SendErrorResponse(rr, newRequest(t, "", ""), table.err)

		assert.Equal(t, table.status, rr.Code)
		assert.JSONEq(t, table.body, rr.Body.String())
	}
}
