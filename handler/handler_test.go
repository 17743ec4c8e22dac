package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"decision-simulator/internal/domain"
	"decision-simulator/internal/usecase"
)

type stubUseCase struct {
	simulateOut usecase.SimulateOutput
	detail      usecase.SimulationDetail
	history     []domain.Simulation
	err         error

	simulateIn usecase.SimulateInput
	gotID      string
	calls      int
}

func (s *stubUseCase) Simulate(_ context.Context, in usecase.SimulateInput) (usecase.SimulateOutput, error) {
	s.calls++
	s.simulateIn = in
	return s.simulateOut, s.err
}

func (s *stubUseCase) GetSimulation(_ context.Context, id string) (usecase.SimulationDetail, error) {
	s.calls++
	s.gotID = id
	return s.detail, s.err
}

func (s *stubUseCase) History(_ context.Context) ([]domain.Simulation, error) {
	s.calls++
	return s.history, s.err
}

func (s *stubUseCase) DeleteSimulation(_ context.Context, id string) error {
	s.calls++
	s.gotID = id
	return s.err
}

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func newTestHandler(t *testing.T, uc SimulationUseCase) *Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h, err := NewHandler(uc)
	require.NoError(t, err)
	return h
}

// responseHeader reads a header from either header map of a proxy response.
func responseHeader(resp events.APIGatewayProxyResponse, name string) string {
	if v, ok := resp.Headers[name]; ok {
		return v
	}
	return http.Header(resp.MultiValueHeaders).Get(name)
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_Simulate_HappyPath(t *testing.T) {
	uc := &stubUseCase{simulateOut: usecase.SimulateOutput{
		SimulationID: "sim-1",
		Paths:        []domain.Path{{Path: domain.PathA, Title: "Take the Leap"}, {Path: domain.PathB, Title: "Stay Secure"}},
	}}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/simulate",
		`{"name":"Ada","age":34,"personality":"curious","decision":"Should I quit?"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.SimulateInput{Name: "Ada", Age: 34, Personality: "curious", Decision: "Should I quit?"}, uc.simulateIn)

	out := parseBody[usecase.SimulateOutput](t, resp.Body)
	require.Equal(t, "sim-1", out.SimulationID)
	require.Len(t, out.Paths, 2)
	require.Contains(t, responseHeader(resp, "Content-Type"), "application/json")
	require.NotEmpty(t, responseHeader(resp, "X-Correlation-Id"))
}

func TestHandle_Simulate_AgeForms(t *testing.T) {
	cases := []struct {
		age  string
		want int
	}{
		{`34`, 34},
		{`"34"`, 34},
		{`" 41 "`, 41},
		{`29.9`, 29},
	}
	for _, tc := range cases {
		uc := &stubUseCase{}
		h := newTestHandler(t, uc)
		resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/simulate",
			`{"name":"Ada","age":`+tc.age+`,"decision":"move?"}`))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, "age=%s", tc.age)
		require.Equal(t, tc.want, uc.simulateIn.Age, "age=%s", tc.age)
	}
}

func TestHandle_Simulate_Base64Body(t *testing.T) {
	uc := &stubUseCase{}
	h := newTestHandler(t, uc)
	event := makeEvent(http.MethodPost, "/api/simulate",
		base64.StdEncoding.EncodeToString([]byte(`{"name":"Ada","age":"30","decision":"propose?"}`)))
	event.IsBase64Encoded = true

	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 30, uc.simulateIn.Age)
}

func TestHandle_Simulate_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `not-json`},
		{"missing name", `{"age":30,"decision":"quit?"}`},
		{"missing age", `{"name":"Ada","decision":"quit?"}`},
		{"null age", `{"name":"Ada","age":null,"decision":"quit?"}`},
		{"empty age", `{"name":"Ada","age":"","decision":"quit?"}`},
		{"zero age", `{"name":"Ada","age":0,"decision":"quit?"}`},
		{"missing decision", `{"name":"Ada","age":30}`},
		{"non-numeric age", `{"name":"Ada","age":"thirty","decision":"quit?"}`},
		{"negative age", `{"name":"Ada","age":-3,"decision":"quit?"}`},
		{"boolean age", `{"name":"Ada","age":true,"decision":"quit?"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &stubUseCase{}
			h := newTestHandler(t, uc)

			resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/simulate", tc.body))
			require.NoError(t, err)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.Zero(t, uc.calls, "generation must not be attempted")

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
		})
	}
}

func TestHandle_GetSimulation(t *testing.T) {
	uc := &stubUseCase{detail: usecase.SimulationDetail{
		Simulation: domain.Simulation{ID: "sim-9", UserName: "Ada"},
		Paths:      []domain.Path{{Path: domain.PathA, Title: "Path A"}, {Path: domain.PathB, Title: "Path B"}},
	}}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/api/simulations/sim-9", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "sim-9", uc.gotID)

	out := parseBody[usecase.SimulationDetail](t, resp.Body)
	require.Equal(t, "Ada", out.Simulation.UserName)
	require.Equal(t, "Path B", out.Paths[1].Title)
}

func TestHandle_History(t *testing.T) {
	uc := &stubUseCase{history: []domain.Simulation{{ID: "s2"}, {ID: "s1"}}}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/api/simulations-history", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := parseBody[[]domain.Simulation](t, resp.Body)
	require.Equal(t, "s2", out[0].ID)
	require.Equal(t, "s1", out[1].ID)
}

func TestHandle_Delete(t *testing.T) {
	uc := &stubUseCase{}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodDelete, "/api/simulations/whatever", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "whatever", uc.gotID)
	require.True(t, parseBody[deleteResponse](t, resp.Body).Success)
}

func TestHandle_Routing(t *testing.T) {
	cases := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/api/simulate", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/simulations-history", http.StatusMethodNotAllowed},
		{http.MethodPut, "/api/simulations/abc", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/simulations/a/b", http.StatusNotFound},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		uc := &stubUseCase{}
		h := newTestHandler(t, uc)
		resp, err := h.Handle(context.Background(), makeEvent(tc.method, tc.path, ""))
		require.NoError(t, err)
		require.Equal(t, tc.status, resp.StatusCode, "%s %s", tc.method, tc.path)
		require.NotEmpty(t, parseBody[errorResponse](t, resp.Body).Error, "%s %s", tc.method, tc.path)
		require.Zero(t, uc.calls)
	}
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_age"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "not found", err: &usecase.Error{Code: usecase.ErrorNotFound, Reason: "simulation_not_found"}, status: http.StatusNotFound, code: string(usecase.ErrorNotFound)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "store_read_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &stubUseCase{err: tc.err}
			h := newTestHandler(t, uc)

			resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/api/simulations/sim-1", ""))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
			require.NotContains(t, out.Message, "boom")
		})
	}
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	uc := &stubUseCase{}
	h := newTestHandler(t, uc)

	event := makeEvent(http.MethodGet, "/api/simulations-history", "")
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", responseHeader(resp, "X-Correlation-Id"))
}
