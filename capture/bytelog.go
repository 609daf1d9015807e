package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// ByteLog appends every decoded byte to a file named by a strftime pattern
// such as "logs/%Y-%m-%d.bin". A new file is started whenever the formatted
// name changes.
type ByteLog struct {
	mu      sync.Mutex
	pattern *strftime.Strftime
	now     func() time.Time
	name    string
	f       *os.File
	written int64
}

func NewByteLog(pattern string) (*ByteLog, error) {
	p, err := strftime.New(pattern)
	if err != nil {
		return nil, fmt.Errorf("byte log pattern %q: %w", pattern, err)
	}
	return &ByteLog{pattern: p, now: time.Now}, nil
}

func (l *ByteLog) open(name string) error {
	if l.f != nil {
		if err := l.f.Close(); err != nil {
			log.Warnf("[capture] Closing %s: %v", l.name, err)
		}
		l.f = nil
	}
	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	log.Infof("[capture] Logging decoded bytes to %s", name)
	l.f = f
	l.name = name
	return nil
}

func (l *ByteLog) ReceiveByte(b byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if name := l.pattern.FormatString(l.now()); name != l.name || l.f == nil {
		if err := l.open(name); err != nil {
			return fmt.Errorf("byte log: %w", err)
		}
	}
	if _, err := l.f.Write([]byte{b}); err != nil {
		return fmt.Errorf("byte log: %w", err)
	}
	l.written++
	return nil
}

// Name is the file currently written, empty before the first byte.
func (l *ByteLog) Name() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.name
}

func (l *ByteLog) Written() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

func (l *ByteLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
