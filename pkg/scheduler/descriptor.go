package scheduler

// ThreadDescriptor is one scheduled real-time worker within a state:
// CPU affinity, stack size, the ordered
// list of function names it runs each cycle, and the name of its declared
// synchronising data source (as read from the configuration; the scheduler
// neither derives it from the bound signals nor checks it).
type ThreadDescriptor struct {
	Name                    string
	CPUAffinity             []int
	StackSize               int
	Functions               []string
	SynchronisingDataSource string
}

// StateDescriptor is a named wiring of threads; the scheduler runs
// exactly one state at a time.
type StateDescriptor struct {
	Name    string
	Threads []ThreadDescriptor
}
