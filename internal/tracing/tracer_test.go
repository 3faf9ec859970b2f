package tracing

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDisabledProviderIsNoop(t *testing.T) {
	p, err := NewProvider(DefaultConfig())
	require.NoError(t, err)
	assert.False(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), SpanCycle)
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestFileExporterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces", "traces.jsonl")
	p, err := NewProvider(Config{
		Enabled:  true,
		Exporter: "file",
		FilePath: path,
	})
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), SpanMerge)
	span.SetAttributes(
		attribute.String(AttrWorkerID, "w0"),
		attribute.Int(AttrWorkerCycle, 3),
	)
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan(), "expected at least one span record")

	var rec SpanRecord
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
	assert.Equal(t, SpanMerge, rec.Name)
	assert.Equal(t, "w0", rec.Attributes[AttrWorkerID])
	assert.EqualValues(t, 3, rec.Attributes[AttrWorkerCycle])
}

func TestNewProviderRejectsUnknownExporter(t *testing.T) {
	_, err := NewProvider(Config{Enabled: true, Exporter: "statsd"})
	require.Error(t, err)
}

func TestFileExporterRequiresPath(t *testing.T) {
	_, err := NewProvider(Config{Enabled: true, Exporter: "file"})
	require.Error(t, err)
}
