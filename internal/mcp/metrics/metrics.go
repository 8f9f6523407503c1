package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbagent_mcp_build_info",
			Help: "Build information of the database MCP server",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbagent_mcp_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbagent_mcp_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 0.01s to ~41s
		},
	)

	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbagent_mcp_auth_failures_total",
			Help: "Total number of authentication failures",
		},
		[]string{"reason"},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbagent_mcp_tool_calls_total",
			Help: "Total number of tool calls",
		},
		[]string{"tool_name", "status"},
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbagent_mcp_tool_call_duration_seconds",
			Help:    "Duration of tool calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"tool_name"},
	)

	ResourceReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbagent_mcp_resource_reads_total",
			Help: "Total number of resource reads",
		},
		[]string{"resource", "status"},
	)
)

// ObserveToolCall records the outcome and duration of a tool call.
func ObserveToolCall(toolName string, failed bool, seconds float64) {
	status := "success"
	if failed {
		status = "error"
	}
	ToolCallsTotal.WithLabelValues(toolName, status).Inc()
	ToolCallDuration.WithLabelValues(toolName).Observe(seconds)
}
