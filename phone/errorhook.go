package phone

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrorHook remembers the message of the last entry logged at Error level or
// worse.
type ErrorHook struct {
	mu   sync.Mutex
	last string
}

func (h *ErrorHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}
}

func (h *ErrorHook) Fire(e *logrus.Entry) error {
	h.mu.Lock()
	h.last = e.Message
	h.mu.Unlock()
	return nil
}

// Last returns the last error message, or "".
func (h *ErrorHook) Last() string {
	if h == nil {
		return ""
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}
