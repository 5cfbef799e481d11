package async

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type captureLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *captureLogger) log(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, format)
}

func (l *captureLogger) Debug(format string, args ...interface{}) { l.log(format, args...) }
func (l *captureLogger) Info(format string, args ...interface{})  { l.log(format, args...) }
func (l *captureLogger) Warn(format string, args ...interface{})  { l.log(format, args...) }
func (l *captureLogger) Error(format string, args ...interface{}) { l.log(format, args...) }

func (l *captureLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

func TestGoWaitRecoversPanic(t *testing.T) {
	logger := &captureLogger{}
	var wg sync.WaitGroup

	GoWait(&wg, logger, "exploder", func() { panic("boom") })
	GoWait(&wg, logger, "fine", func() {})
	wg.Wait()

	require.Equal(t, 1, logger.count())
}

func TestGoWaitNilLoggerDoesNotCrash(t *testing.T) {
	var wg sync.WaitGroup
	GoWait(&wg, nil, "exploder", func() { panic("boom") })
	wg.Wait()
}
