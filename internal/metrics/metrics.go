package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	QuotesApplied           Counter
	StaleQuotesDropped      Counter
	OpportunitiesDetected   Counter
	OpportunitiesSuppressed Counter
	AttemptsStarted         Counter
	AttemptsHedged          Counter
	AttemptsAborted         Counter
	Unwinds                 Counter
	UnwindFailures          Counter
	OrdersPlaced            Counter
	OrdersFailed            Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		QuotesApplied:           n,
		StaleQuotesDropped:      n,
		OpportunitiesDetected:   n,
		OpportunitiesSuppressed: n,
		AttemptsStarted:         n,
		AttemptsHedged:          n,
		AttemptsAborted:         n,
		Unwinds:                 n,
		UnwindFailures:          n,
		OrdersPlaced:            n,
		OrdersFailed:            n,
	}
}
