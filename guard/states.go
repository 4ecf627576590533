package guard

type GuardState uint32

const (
	StateIdle       GuardState = iota
	StateEvaluating            // at least one check is running
	StateStopped               // no more ticks; running checks may still finish
)
