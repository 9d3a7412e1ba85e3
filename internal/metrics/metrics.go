package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stage counters and gauges, partitioned by protection mode.

var (
	// Sensor
	SensorSamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magtorq",
		Subsystem: "sensor",
		Name:      "samples_total",
		Help:      "Total magnetic-field samples generated",
	}, []string{"mode"})

	SensorDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magtorq",
		Subsystem: "sensor",
		Name:      "drops_total",
		Help:      "Samples dropped because the sample queue was full",
	}, []string{"mode"})

	// Controller
	ControllerCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magtorq",
		Subsystem: "controller",
		Name:      "commands_total",
		Help:      "Total coil commands computed by the control law",
	}, []string{"mode"})

	ControllerDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magtorq",
		Subsystem: "controller",
		Name:      "drops_total",
		Help:      "Commands dropped because the command queue was full",
	}, []string{"mode"})

	ControllerGapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magtorq",
		Subsystem: "controller",
		Name:      "sequence_gaps_total",
		Help:      "Non-consecutive sample sequence numbers observed",
	}, []string{"mode"})

	ControllerTMRVotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magtorq",
		Subsystem: "controller",
		Name:      "tmr_votes_total",
		Help:      "Samples resolved by triple-modular-redundancy voting",
	}, []string{"mode"})

	ControllerTMRCorrectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magtorq",
		Subsystem: "controller",
		Name:      "tmr_corrections_total",
		Help:      "Axes where at least one replica was outvoted",
	}, []string{"mode", "axis"})

	ControllerSaturationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magtorq",
		Subsystem: "controller",
		Name:      "saturations_total",
		Help:      "Command axes clamped to the actuator limit",
	}, []string{"mode", "axis"})

	ControllerStepLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "magtorq",
		Subsystem: "controller",
		Name:      "step_duration_seconds",
		Help:      "Control law step duration",
		Buckets:   []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
	}, []string{"mode"})

	// Actuator
	ActuatorCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magtorq",
		Subsystem: "actuator",
		Name:      "commands_total",
		Help:      "Total coil commands issued",
	}, []string{"mode"})

	ActuatorSaturatedCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magtorq",
		Subsystem: "actuator",
		Name:      "saturated_commands_total",
		Help:      "Issued commands with at least one saturated axis",
	}, []string{"mode"})

	ActuatorSRLClampsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magtorq",
		Subsystem: "actuator",
		Name:      "srl_clamps_total",
		Help:      "Slew-rate limiter clamp events per axis",
	}, []string{"mode", "axis"})

	ActuatorWindowSaturations = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "magtorq",
		Subsystem: "actuator",
		Name:      "window_saturations",
		Help:      "Saturated commands in the last closed statistics window",
	}, []string{"mode"})

	ActuatorWindowAvgAmax = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "magtorq",
		Subsystem: "actuator",
		Name:      "window_avg_amax",
		Help:      "Average max-axis command magnitude in the last closed window",
	}, []string{"mode"})

	ActuatorLastSeq = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "magtorq",
		Subsystem: "actuator",
		Name:      "last_seq",
		Help:      "Sequence number of the last issued command",
	}, []string{"mode"})

	// Pipeline
	PipelineQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "magtorq",
		Subsystem: "pipeline",
		Name:      "queue_depth",
		Help:      "Current number of items buffered in an inter-stage queue",
	}, []string{"mode", "queue"})

	PipelineHalted = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "magtorq",
		Subsystem: "pipeline",
		Name:      "halted",
		Help:      "1 once the experiment has completed and the pipeline halted",
	}, []string{"mode"})

	PipelineReportsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magtorq",
		Subsystem: "pipeline",
		Name:      "reports_dropped_total",
		Help:      "Window reports dropped because the report channel was full",
	}, []string{"mode"})

	// Reporter
	ReporterPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magtorq",
		Subsystem: "reporter",
		Name:      "published_total",
		Help:      "Reports published to the report stream",
	}, []string{"mode", "kind"})

	ReporterPublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magtorq",
		Subsystem: "reporter",
		Name:      "publish_errors_total",
		Help:      "Report publish failures, including breaker rejections",
	}, []string{"mode", "kind"})

	// Diagnostic stream
	DiagLinesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magtorq",
		Subsystem: "diag",
		Name:      "lines_written_total",
		Help:      "Diagnostic lines written",
	}, []string{"kind"})

	DiagLinesSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magtorq",
		Subsystem: "diag",
		Name:      "lines_suppressed_total",
		Help:      "Per-sample diagnostic lines suppressed by the output policy",
	}, []string{"kind"})

	// Fault injection
	SEUFlipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magtorq",
		Subsystem: "seu",
		Name:      "flips_total",
		Help:      "Bit flips applied by the plan injector",
	}, []string{"site"})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magtorq",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts sent",
	}, []string{"channel", "alert_type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magtorq",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Total alerts skipped due to cooldown",
	}, []string{"channel", "alert_type"})
)

// AxisLabels are the label values used for per-axis series.
var AxisLabels = [3]string{"x", "y", "z"}
