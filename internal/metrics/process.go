package metrics

import (
	"runtime"
	"time"
)

func (r *Registry) collectProcess(b *Builder) {
	b.Gauge("uptime_seconds", "Seconds since the process started.", time.Since(r.started).Seconds())
	b.Gauge("goroutines", "Number of goroutines.", float64(runtime.NumGoroutine()))

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	b.Gauge("heap_alloc_bytes", "Bytes of allocated heap objects.", float64(ms.HeapAlloc))
	b.Counter("gc_cycles_total", "Completed GC cycles.", float64(ms.NumGC))
}
