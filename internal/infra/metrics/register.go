package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Every collector in this package is exported under this prefix.
const namespace = "companion_billing"

var (
	once       sync.Once
	collectors []prometheus.Collector
)

// register is called from init() in each metrics file.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// MustRegister adds the package collectors to the default registry once.
func MustRegister() {
	once.Do(func() { MustRegisterWith(prometheus.DefaultRegisterer) })
}

// MustRegisterWith adds the package collectors to reg. It panics on duplicates.
func MustRegisterWith(reg prometheus.Registerer) {
	if len(collectors) > 0 {
		reg.MustRegister(collectors...)
	}
}
