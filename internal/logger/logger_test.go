package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		env   string
		want  zapcore.Level
	}{
		{"debug", "development", zapcore.DebugLevel},
		{"info", "production", zapcore.InfoLevel},
		{"warn", "staging", zapcore.WarnLevel},
		{"error", "production", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.env, func(t *testing.T) {
			log, err := New(tt.level, tt.env)
			if err != nil {
				t.Fatalf("New(%q, %q): %v", tt.level, tt.env, err)
			}
			defer log.Sync()
			if !log.Core().Enabled(tt.want) {
				t.Errorf("level %v not enabled", tt.want)
			}
			if tt.want > zapcore.DebugLevel && log.Core().Enabled(tt.want-1) {
				t.Errorf("level %v unexpectedly enabled", tt.want-1)
			}
		})
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New("chatty", "development"); err == nil {
		t.Fatal("New accepted an unknown level")
	}
}

func TestNop_NoPanic(t *testing.T) {
	log := Nop()
	log.Info("ignored")
	log.Error("ignored too")
}
