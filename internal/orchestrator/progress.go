package orchestrator

// Snapshot is a point-in-time view of a run, suitable for driving a progress
// bar. Completed is the sum of Succeeded, Cached and Failed.
type Snapshot struct {
	Total          int
	Completed      int
	Succeeded      int
	Cached         int
	Failed         int
	BatchesDone    int
	ThrottleFactor float64
	CircuitState   string
}
