package log

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
)

// NewMockEntry returns a trace level entry which writes nowhere. Every fired entry is recorded by the hook.
func NewMockEntry() (*logrus.Entry, *MockLoggerHook) {
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)

	hook := &MockLoggerHook{}
	hook.On("Fire", mock.Anything).Return(nil)

	logger.AddHook(hook)

	return logrus.NewEntry(logger), hook
}

// MockLoggerHook records the messages of fired entries, Calls holds the level of each one
type MockLoggerHook struct {
	mock.Mock

	mu       sync.Mutex
	Messages []string
}

func (h *MockLoggerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *MockLoggerHook) Fire(entry *logrus.Entry) error {
	h.mu.Lock()
	h.Messages = append(h.Messages, entry.Message)
	h.mu.Unlock()

	return h.Called(entry.Level).Error(0)
}

// Reset drops all recorded messages
func (h *MockLoggerHook) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.Messages = nil
}
