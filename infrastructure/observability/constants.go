package observability

// Metric name prefixes
const (
	MetricPrefix = "givevault"
)

// Metric names
const (
	LedgerOperationsTotal = MetricPrefix + ".ledger.operations_total"
	DonationsTotal        = MetricPrefix + ".ledger.donated_total"
	SinkRecordsTotal      = MetricPrefix + ".sink.records_total"
)

// Label keys
const (
	LabelOperation = "operation"
	LabelOutcome   = "outcome"
	LabelErrorType = "error_type"
	LabelSink      = "sink"
	LabelEventType = "event_type"
)

// Outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
