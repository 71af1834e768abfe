package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_HasComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelDebug, "text", &buf)

	New("gate").Info("hello")

	assert.Contains(t, buf.String(), "component=gate")
	assert.Contains(t, buf.String(), "hello")
}

func TestInit_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelInfo, "json", &buf)

	New("json-test").Info("json check")

	assert.Contains(t, buf.String(), `"level":"INFO"`)
	assert.Contains(t, buf.String(), `"component":"json-test"`)
}

func TestInit_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Init(Level(false), "text", &buf)

	New("quiet").Debug("hidden")
	assert.Empty(t, buf.String())

	Init(Level(true), "text", &buf)
	New("loud").Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}
