// Package metrics renders point-in-time component stats in the Prometheus
// text exposition format.
//
// Components keep their own counters (atomics, Stats methods); a Registry
// only reads them at scrape time, so nothing here sits on a hot path.
package metrics

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	logx "ruche/pkg/logx"
)

// Namespace prefixes every family name.
const Namespace = "ruche"

// CollectFunc appends samples for one component.
type CollectFunc func(b *Builder)

type Registry struct {
	mu         sync.RWMutex
	collectors []namedCollector
	log        logx.Logger
	started    time.Time
}

type namedCollector struct {
	name string
	fn   CollectFunc
}

func NewRegistry(log logx.Logger) *Registry {
	r := &Registry{log: log, started: time.Now()}
	r.Register("process", r.collectProcess)
	return r
}

func (r *Registry) Register(name string, fn CollectFunc) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.collectors = append(r.collectors, namedCollector{name: name, fn: fn})
	r.mu.Unlock()
}

// Gather runs every collector and returns the families sorted by name. A
// panicking collector is skipped.
func (r *Registry) Gather() []*dto.MetricFamily {
	r.mu.RLock()
	cs := append([]namedCollector(nil), r.collectors...)
	r.mu.RUnlock()

	b := newBuilder()
	for _, c := range cs {
		r.collect(b, c)
	}
	return b.families()
}

func (r *Registry) collect(b *Builder, c namedCollector) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("metrics collector panicked", logx.String("collector", c.name), logx.Any("panic", rec))
		}
	}()
	c.fn(b)
}

func (r *Registry) WriteText(w io.Writer) error {
	for _, mf := range r.Gather() {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("metrics: %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Handler serves /metrics.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var buf bytes.Buffer
		if err := r.WriteText(&buf); err != nil {
			r.log.Warn("metrics render failed", logx.Err(err))
			http.Error(w, "metrics unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		_, _ = w.Write(buf.Bytes())
	})
}

// Builder accumulates samples into families during one Gather.
type Builder struct {
	byName map[string]*dto.MetricFamily
}

func newBuilder() *Builder { return &Builder{byName: map[string]*dto.MetricFamily{}} }

// Counter adds a sample; labels are alternating name/value pairs.
func (b *Builder) Counter(name, help string, v float64, labels ...string) {
	m := b.metric(name, help, dto.MetricType_COUNTER, labels)
	m.Counter = &dto.Counter{Value: proto.Float64(v)}
}

func (b *Builder) Gauge(name, help string, v float64, labels ...string) {
	m := b.metric(name, help, dto.MetricType_GAUGE, labels)
	m.Gauge = &dto.Gauge{Value: proto.Float64(v)}
}

func (b *Builder) metric(name, help string, typ dto.MetricType, labels []string) *dto.Metric {
	full := Namespace + "_" + name
	mf := b.byName[full]
	if mf == nil {
		mf = &dto.MetricFamily{
			Name: proto.String(full),
			Help: proto.String(help),
			Type: typ.Enum(),
		}
		b.byName[full] = mf
	}
	m := &dto.Metric{}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{
			Name:  proto.String(labels[i]),
			Value: proto.String(labels[i+1]),
		})
	}
	mf.Metric = append(mf.Metric, m)
	return m
}

func (b *Builder) families() []*dto.MetricFamily {
	out := make([]*dto.MetricFamily, 0, len(b.byName))
	for _, mf := range b.byName {
		out = append(out, mf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}
