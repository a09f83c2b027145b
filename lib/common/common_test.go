package common

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/litepool/lib/pool"
	"github.com/lni/dragonboat/v4/logger"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]logger.LogLevel{
		"debug":   logger.DEBUG,
		"INFO":    logger.INFO,
		"warn":    logger.WARNING,
		"warning": logger.WARNING,
		"error":   logger.ERROR,
	}
	for in, want := range cases {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Errorf("Expected an error for an unknown level")
	}
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	prev := logOutput
	logOutput = &buf
	defer func() { logOutput = prev }()

	l := CreateLogger("pool")
	l.Infof("hidden %d", 1)
	l.SetLevel(logger.DEBUG)
	l.Debugf("opened %d readers", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected info message to be filtered at the default level, got %q", out)
	}
	if !strings.Contains(out, "DEBUG | pool     | opened 3 readers") {
		t.Errorf("Unexpected log line %q", out)
	}
}

func TestPoolConfig(t *testing.T) {
	c := DefaultPoolConfig("app.db")
	if err := c.Validate(); err != nil {
		t.Fatalf("Default config is invalid: %v", err)
	}

	opts := c.ToPoolOptions()
	if opts.ReaderCapacity != pool.DefaultReaderCapacity || opts.Opener == nil {
		t.Errorf("Unexpected pool options %+v", opts)
	}
	if c.ToSQLiteOptions().JournalMode != "WAL" {
		t.Errorf("Expected WAL journal mode by default")
	}
	if c.ToStoreOptions().GCInterval != time.Second {
		t.Errorf("Expected 1 sec gc interval by default")
	}

	out := c.String()
	for _, want := range []string{"DATABASE", "app.db", "Reader Capacity", "WAL"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected config output to contain %q:\n%s", want, out)
		}
	}

	c.ReaderCapacity = 0
	if err := c.Validate(); !errors.Is(err, pool.ErrInvalidCapacity) {
		t.Errorf("Expected ErrInvalidCapacity, got %v", err)
	}
	c.ReaderCapacity = 1
	c.LogLevel = "loud"
	if err := c.Validate(); err == nil {
		t.Errorf("Expected an invalid log level to be rejected")
	}
}
