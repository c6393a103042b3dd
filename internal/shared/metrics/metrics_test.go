package metrics

import (
	"strings"
	"testing"
)

func TestHistogramCountsPerBucket(t *testing.T) {
	h := newHistogram([]float64{10, 100})
	h.Observe(5)
	h.Observe(50)
	h.Observe(500)

	snap := h.Snapshot()
	if snap.count != 3 {
		t.Fatalf("expected count 3, got %d", snap.count)
	}
	if snap.counts[0] != 1 || snap.counts[1] != 1 {
		t.Fatalf("unexpected bucket counts: %v", snap.counts)
	}
}

func TestRenderIncludesProviderLabels(t *testing.T) {
	IncProviderCall("deepseek", "ok")
	IncProviderCall("gemini", "error")
	IncJobSubmitted()

	out := Render()
	for _, want := range []string{
		`provider_calls_total{provider="deepseek",outcome="ok"}`,
		`provider_calls_total{provider="gemini",outcome="error"}`,
		"# TYPE analysis_jobs_submitted_total counter",
		`analysis_job_duration_ms_bucket{le="+Inf"}`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestProviderFallbacksRenderedPerProvider(t *testing.T) {
	before := ProviderFallbacks("gemini")
	IncProviderFallback("gemini")
	IncProviderFallback("gemini")

	if got := ProviderFallbacks("gemini") - before; got != 2 {
		t.Fatalf("expected 2 new fallbacks, got %d", got)
	}
	if out := Render(); !strings.Contains(out, `provider_fallbacks_total{provider="gemini"}`) {
		t.Fatalf("expected fallback counter in output:\n%s", out)
	}
}
