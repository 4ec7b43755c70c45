package protocol

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	framesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smcmon_protocol_frames_total",
		Help: "Frames received from monitoring sockets by kind",
	}, []string{"kind"})
	sessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smcmon_protocol_sessions_total",
		Help: "Monitoring socket connection attempts and closures by result",
	}, []string{"result"})
	openSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "smcmon_protocol_open_sessions",
		Help: "Number of currently open monitoring sockets",
	})
)

// RegisterMetrics registers the protocol metrics
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{framesTotal, sessionsTotal, openSessions} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
