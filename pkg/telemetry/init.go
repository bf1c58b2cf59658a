package telemetry

import (
	"log"

	"go.opentelemetry.io/sdk/trace"
)

// SetupDefaultGlobalTracer registers the global tracer with two span
// processors: one that prints every finished span as a JSON line, and one
// that turns finished spans into the Prometheus counters and histograms
// held by m.
func SetupDefaultGlobalTracer(m *Metrics) {
	trace.Register()

	stdoutExporter, err := NewExporter(Options{PrettyPrint: false})
	if err != nil {
		log.Fatal(err)
	}

	ssp := trace.NewSimpleSpanProcessor(stdoutExporter)
	trace.RegisterSpanProcessor(ssp)

	promExporter, err := NewPromExporter(m, PromOptions{PrettyPrint: false})
	if err != nil {
		log.Fatal(err)
	}
	ssp2 := trace.NewSimpleSpanProcessor(promExporter)
	trace.RegisterSpanProcessor(ssp2)

	// A release run produces a handful of spans, so sample everything.
	trace.ApplyConfig(trace.Config{DefaultSampler: trace.AlwaysSample()})
}
