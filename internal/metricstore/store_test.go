package metricstore

import (
	"strings"
	"testing"

	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_UpsertAndRender(t *testing.T) {
	s := New("", nil)
	s.Upsert("droplet_memory_settings", map[string]string{"droplet": "alpha"}, 1024)

	out, err := s.Render()
	require.NoError(t, err)
	assert.Contains(t, string(out), `droplet_memory_settings{droplet="alpha"} 1024`)
}

func TestStore_PrefixAndGlobalLabels(t *testing.T) {
	s := New("do_droxporter_", map[string]string{"env": "prod"})
	s.Upsert("droplet_memory_settings", map[string]string{"droplet": "alpha"}, 1024)

	out, err := s.Render()
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, `do_droxporter_droplet_memory_settings{droplet="alpha",env="prod"} 1024`)
	assert.NotContains(t, text, "\ndroplet_memory_settings{")
}

func TestStore_ExplicitLabelWinsOverGlobalOnConflict(t *testing.T) {
	s := New("", map[string]string{"droplet": "global-default"})
	s.Upsert("droplet_status", map[string]string{"droplet": "alpha", "status": "active"}, 1)

	out, err := s.Render()
	require.NoError(t, err)
	assert.Contains(t, string(out), `droplet="alpha"`)
	assert.NotContains(t, string(out), `droplet="global-default"`)
}

func TestStore_EmptyFamiliesAreOmitted(t *testing.T) {
	s := New("", nil)
	s.Declare(FamilyDef{Name: "droplet_bandwidth", Help: "bandwidth", Type: Gauge, Labels: []string{"droplet"}})

	out, err := s.Render()
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(string(out)))
}

func TestStore_UpsertOverwritesSameIdentity(t *testing.T) {
	s := New("", nil)
	s.Upsert("droplet_cpu", map[string]string{"droplet": "alpha"}, 10)
	first, err := s.Render()
	require.NoError(t, err)

	s.Upsert("droplet_cpu", map[string]string{"droplet": "alpha"}, 20)
	second, err := s.Render()
	require.NoError(t, err)

	assert.Contains(t, string(first), " 10")
	assert.Contains(t, string(second), " 20")
	assert.NotContains(t, string(second), " 10")
	// Identity set (number of distinct label sets) must stay the same.
	assert.Equal(t, strings.Count(string(first), "droplet_cpu{"), strings.Count(string(second), "droplet_cpu{"))
}

func TestStore_DeleteByLabelRemovesMatchingSamplesOnly(t *testing.T) {
	s := New("", nil)
	s.Upsert("droplet_cpu", map[string]string{"droplet": "alpha"}, 1)
	s.Upsert("droplet_cpu", map[string]string{"droplet": "beta"}, 2)

	s.DeleteByLabel("droplet_cpu", "droplet", func(v string) bool { return v == "beta" })

	out, err := s.Render()
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, `droplet="alpha"`)
	assert.NotContains(t, text, `droplet="beta"`)
}

func TestStore_RenderIsValidPrometheusText(t *testing.T) {
	s := New("droxporter_", map[string]string{"env": "prod"})
	s.Upsert("droplet_memory_settings", map[string]string{"droplet": "alpha"}, 1024)
	s.Upsert("droplet_status", map[string]string{"droplet": "alpha", "status": "active"}, 1)

	out, err := s.Render()
	require.NoError(t, err)

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(strings.NewReader(string(out)))
	require.NoError(t, err)
	assert.Len(t, families, 2)
}

func TestStore_LabelValueEscaping(t *testing.T) {
	s := New("", nil)
	s.Upsert("droplet_cpu", map[string]string{"droplet": `weird"name\with` + "\nnewline"}, 1)

	out, err := s.Render()
	require.NoError(t, err)

	var parser expfmt.TextParser
	_, err = parser.TextToMetricFamilies(strings.NewReader(string(out)))
	require.NoError(t, err)
}

func TestStore_CounterAndHistogramFamilies(t *testing.T) {
	s := New("", nil)
	s.Declare(FamilyDef{Name: "jobs_counter", Help: "job outcomes", Type: Counter, Labels: []string{"type", "result"}})
	s.Declare(FamilyDef{Name: "jobs_time_histogram_seconds", Help: "job duration", Type: Histogram, Labels: []string{"type"}, Buckets: []float64{0.1, 0.5, 1, 5}})

	s.IncCounter("jobs_counter", map[string]string{"type": "cpu", "result": "success"}, 1)
	s.ObserveHistogram("jobs_time_histogram_seconds", map[string]string{"type": "cpu"}, 0.2)

	out, err := s.Render()
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, `jobs_counter{result="success",type="cpu"} 1`)
	assert.Contains(t, text, "jobs_time_histogram_seconds_bucket")
}
