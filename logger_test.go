package wikimcp

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Logger focused tests kept light: exported logger APIs must not panic and
// must remain callable. Formatting assertions live in the buffer tests below.
func TestSimpleLoggerLevels(t *testing.T) {
	logger := NewSimpleLogger()

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")
}

func TestSimpleLoggerReusability(t *testing.T) {
	logger := NewSimpleLogger()
	for i := 0; i < 5; i++ {
		logger.Info("loop message")
	}
}

func TestSimpleLoggerKeyValuePairs(t *testing.T) {
	var buf bytes.Buffer
	logger := &SimpleLogger{out: &buf}

	logger.Warn("mirror unhealthy", "mirror", "https://en.wikipedia.org", "failures", 3)

	line := buf.String()
	if !strings.HasPrefix(line, "[WARN] ") {
		t.Errorf("Expected [WARN] prefix, got %q", line)
	}
	if !strings.Contains(line, "mirror unhealthy") {
		t.Errorf("Expected message in output, got %q", line)
	}
	if !strings.Contains(line, "mirror=https://en.wikipedia.org") {
		t.Errorf("Expected mirror key/value pair, got %q", line)
	}
	if !strings.Contains(line, "failures=3") {
		t.Errorf("Expected failures key/value pair, got %q", line)
	}
}

func TestSimpleLoggerOddKeyValuesIgnored(t *testing.T) {
	var buf bytes.Buffer
	logger := &SimpleLogger{out: &buf}

	logger.Info("dangling", "orphan")

	line := buf.String()
	if strings.Contains(line, "orphan") {
		t.Errorf("Expected dangling key to be dropped, got %q", line)
	}
}

func TestZapLoggerForwardsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Debug("cache hit", "key", "search:en:golang")
	logger.Info("mirror switched", "mirror", "https://de.wikipedia.org")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Message != "cache hit" {
		t.Errorf("Expected message 'cache hit', got %q", entries[0].Message)
	}
	if entries[0].Level != zapcore.DebugLevel {
		t.Errorf("Expected debug level, got %v", entries[0].Level)
	}
	ctx := entries[1].ContextMap()
	if ctx["mirror"] != "https://de.wikipedia.org" {
		t.Errorf("Expected mirror field, got %v", ctx["mirror"])
	}
}

func TestDefaultDebugConfig(t *testing.T) {
	config := DefaultDebugConfig()

	if config.Enabled {
		t.Error("Expected debug output disabled by default")
	}
	if !config.LogRequests || !config.LogRetries || !config.LogCache ||
		!config.LogCircuit || !config.LogRateLimit || !config.LogDedup || !config.LogMirrors {
		t.Error("Expected all debug categories enabled by default")
	}
	if config.RequestIDGen == nil {
		t.Fatal("Expected default RequestIDGen")
	}
}

func TestGenerateRequestIDFormat(t *testing.T) {
	id := generateRequestID()
	if len(id) < 5 || !strings.HasPrefix(id, "req_") {
		t.Errorf("Expected request ID with 'req_' prefix, got %s", id)
	}
	if other := generateRequestID(); other == id {
		t.Errorf("Expected distinct request IDs, got %s twice", id)
	}
}
