package duelqueue

// RoundTimeoutSweepArgs is the periodic job that applies timeouts to overdue
// open rounds. The sweep is defensive: read paths perform the same flush, so
// the job's cadence bounds staleness, not correctness.
type RoundTimeoutSweepArgs struct{}

// Kind returns the job type identifier for River.
func (RoundTimeoutSweepArgs) Kind() string { return "round_timeout_sweep" }

// TicketExpirySweepArgs is the periodic job that cancels matchmaking tickets
// older than their TTL.
type TicketExpirySweepArgs struct{}

// Kind returns the job type identifier for River.
func (TicketExpirySweepArgs) Kind() string { return "ticket_expiry_sweep" }
