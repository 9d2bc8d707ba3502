package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"spectroctl"
	"spectroctl/internal/controls"
	"spectroctl/internal/service"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockParameters struct {
	readValue controls.Value
	readErr   error
	writeErr  error

	lastReadName  string
	lastWriteName string
	lastWritten   controls.Value
	writeCalls    int
}

func (m *mockParameters) Read(ctx context.Context, name string) (controls.Value, error) {
	m.lastReadName = name
	return m.readValue, m.readErr
}
func (m *mockParameters) Write(ctx context.Context, name string, v controls.Value) error {
	m.writeCalls++
	m.lastWriteName = name
	m.lastWritten = v
	return m.writeErr
}

type mockMonitoring struct {
	states      []spectroctl.PCState
	statesErr   error
	measured    float64
	measuredErr error

	lastMeasuredDevice string
}

func (m *mockMonitoring) States(ctx context.Context) ([]spectroctl.PCState, error) {
	return m.states, m.statesErr
}
func (m *mockMonitoring) Measured(ctx context.Context, device string) (float64, error) {
	m.lastMeasuredDevice = device
	return m.measured, m.measuredErr
}

type mockLogbook struct {
	events    []spectroctl.LogbookEvent
	listErr   error
	appendErr error

	lastAuthor string
	lastText   string
	lastMeta   any
	lastFrom   time.Time
	lastTo     time.Time
}

func (m *mockLogbook) Append(ctx context.Context, author, text string, meta any) error {
	m.lastAuthor = author
	m.lastText = text
	m.lastMeta = meta
	return m.appendErr
}
func (m *mockLogbook) List(ctx context.Context, f service.LogFilter) ([]spectroctl.LogbookEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	return m.events, m.listErr
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
