package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInitializeSilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("default logger should be a nop logger")
	}
}

func TestInitializeFromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "debug")
	if err := InitializeFromEnv(); err != nil {
		t.Fatalf("InitializeFromEnv() error = %v", err)
	}
	defer SetLogger(nil)

	if !GetLogger().Core().Enabled(zapcore.DebugLevel) {
		t.Error("logger should have debug enabled")
	}
}

func TestDumps(t *testing.T) {
	data := []byte("NOTIFY *\r\n")
	if got := asciiDump(data); got != "NOTIFY *.." {
		t.Errorf("asciiDump() = %q, want %q", got, "NOTIFY *..")
	}
	if got := hexDump([]byte{0xde, 0xad}); got != "dead" {
		t.Errorf("hexDump() = %q, want %q", got, "dead")
	}

	long := make([]byte, maxDumpBytes+10)
	if got := hexDump(long); !strings.HasSuffix(got, "...") {
		t.Error("hexDump() of long input should be truncated")
	}
	if got := asciiDump(long); len(got) != maxDumpBytes {
		t.Errorf("len(asciiDump()) = %d, want %d", len(got), maxDumpBytes)
	}
}
