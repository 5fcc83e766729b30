package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/core/ports"
)

// MockLogger is a mock implementation of the Logger interface
type MockLogger struct {
	mock.Mock
}

// NewPermissiveLogger accepts every log call and returns itself from
// WithFields.
func NewPermissiveLogger() *MockLogger {
	return new(MockLogger).Permit()
}

// Permit adds catch-all expectations after any already registered, so
// specific expectations set up earlier still match first.
func (m *MockLogger) Permit() *MockLogger {
	for _, method := range []string{"Debugf", "Infof", "Warnf"} {
		m.On(method, mock.Anything, mock.Anything).Maybe().Return()
	}
	m.On("Errorf", mock.Anything, mock.Anything, mock.Anything).Maybe().Return()
	m.On("WithFields", mock.Anything).Maybe().Return(m)
	return m
}

// Variadic arguments are not forwarded, so expectations match on ctx and
// format (plus err for Errorf) only.
func (m *MockLogger) Debugf(ctx context.Context, format string, args ...any) {
	m.Called(ctx, format)
}

func (m *MockLogger) Infof(ctx context.Context, format string, args ...any) {
	m.Called(ctx, format)
}

func (m *MockLogger) Warnf(ctx context.Context, format string, args ...any) {
	m.Called(ctx, format)
}

func (m *MockLogger) Errorf(ctx context.Context, err error, format string, args ...any) {
	m.Called(ctx, err, format)
}

func (m *MockLogger) WithFields(fields map[string]any) ports.Logger {
	args := m.Called(fields)
	return args.Get(0).(ports.Logger)
}

// MockGateway is a mock implementation of ports.ProviderGateway
type MockGateway struct {
	mock.Mock
	ProviderName string
	Type         domain.ResourceType
}

func NewMockGateway(provider string, rt domain.ResourceType) *MockGateway {
	return &MockGateway{ProviderName: provider, Type: rt}
}

func (m *MockGateway) Provider() string {
	return m.ProviderName
}

func (m *MockGateway) ResourceType() domain.ResourceType {
	return m.Type
}

func (m *MockGateway) GetStatus(ctx context.Context, key domain.ResourceKey) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) RequestTransition(ctx context.Context, key domain.ResourceKey, action domain.Action) error {
	args := m.Called(ctx, key, action)
	return args.Error(0)
}

// MockNotifier is a mock implementation of ports.Notifier
type MockNotifier struct {
	mock.Mock
	NotifierName string
}

func (m *MockNotifier) Name() string {
	if m.NotifierName == "" {
		return "mock"
	}
	return m.NotifierName
}

func (m *MockNotifier) Notify(ctx context.Context, event domain.TransitionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockReporter is a mock implementation of ports.Reporter
type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) Report(ctx context.Context, outcomes []domain.Outcome) error {
	args := m.Called(ctx, outcomes)
	return args.Error(0)
}
