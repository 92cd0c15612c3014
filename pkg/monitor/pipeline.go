package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics 签名流水线指标
type PipelineMetrics struct {
	SigningFlowsTotal      *prometheus.CounterVec
	DeviceChunksTotal      prometheus.Counter
	RateLimitWait          prometheus.Histogram
	MultisigPendingRequest *prometheus.GaugeVec
}

// Pipeline 为 nil 时所有记录函数都是 no-op (库和单元测试不需要注册指标)
var Pipeline *PipelineMetrics

// InitPipelineMetrics 初始化流水线指标
func InitPipelineMetrics() {
	Pipeline = &PipelineMetrics{
		SigningFlowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "multisig_signing_flows_total",
			Help: "Signing flows that reached a terminal state",
		}, []string{"result"}),
		DeviceChunksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "multisig_device_apdu_chunks_total",
			Help: "APDU chunks sent to the signing device",
		}),
		RateLimitWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "multisig_ratelimit_wait_seconds",
			Help:    "Time spent waiting for an RPC token",
			Buckets: prometheus.DefBuckets,
		}),
		MultisigPendingRequest: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "multisig_requests_pending",
			Help: "Pending multisig requests observed per contract",
		}, []string{"contract"}),
	}
}

func IncSigningFlow(result string) {
	if Pipeline != nil {
		Pipeline.SigningFlowsTotal.WithLabelValues(result).Inc()
	}
}

func AddDeviceChunks(n int) {
	if Pipeline != nil {
		Pipeline.DeviceChunksTotal.Add(float64(n))
	}
}

func ObserveRateLimitWait(d time.Duration) {
	if Pipeline != nil {
		Pipeline.RateLimitWait.Observe(d.Seconds())
	}
}

func SetPendingRequests(contract string, n int) {
	if Pipeline != nil {
		Pipeline.MultisigPendingRequest.WithLabelValues(contract).Set(float64(n))
	}
}
