package jobs

import "time"

// RefreshStatus reflects only the most recent poll attempt
type RefreshStatus string

const (
	RefreshIdle    RefreshStatus = "idle"
	RefreshLoading RefreshStatus = "loading"
	RefreshSuccess RefreshStatus = "success"
	RefreshError   RefreshStatus = "error"
)

// Snapshot is the ordered job list returned by one poll. It is never
// modified after construction; a new poll produces a new Snapshot.
type Snapshot struct {
	jobs    []Job
	fetched time.Time
}

// NewSnapshot copies list into a new Snapshot
func NewSnapshot(list []Job, fetched time.Time) Snapshot {
	cp := make([]Job, len(list))
	copy(cp, list)
	return Snapshot{jobs: cp, fetched: fetched}
}

// Len returns the number of jobs
func (s Snapshot) Len() int { return len(s.jobs) }

// FetchedAt is when the poll that produced this Snapshot completed; zero for the initial empty Snapshot
func (s Snapshot) FetchedAt() time.Time { return s.fetched }

// Jobs returns a copy of the ordered job list
func (s Snapshot) Jobs() []Job {
	cp := make([]Job, len(s.jobs))
	copy(cp, s.jobs)
	return cp
}

// HasRunning reports whether any job is running
func (s Snapshot) HasRunning() bool {
	for _, j := range s.jobs {
		if j.Status.IsRunning() {
			return true
		}
	}
	return false
}

// FirstQueued returns the first queued job in snapshot order
func (s Snapshot) FirstQueued() (Job, bool) {
	for _, j := range s.jobs {
		if j.Status.IsQueued() {
			return j, true
		}
	}
	return Job{}, false
}

// OnlyRunning returns a Snapshot holding just the running jobs, order kept
func (s Snapshot) OnlyRunning() Snapshot {
	running := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.Status.IsRunning() {
			running = append(running, j)
		}
	}
	return Snapshot{jobs: running, fetched: s.fetched}
}

// Find returns the job with the given id
func (s Snapshot) Find(id string) (Job, bool) {
	for _, j := range s.jobs {
		if j.ID == id {
			return j, true
		}
	}
	return Job{}, false
}

// Counts summarises a Snapshot by status
type Counts struct {
	Total   int `json:"total" yaml:"total"`
	Queued  int `json:"queued" yaml:"queued"`
	Running int `json:"running" yaml:"running"`
	Other   int `json:"other" yaml:"other"`
}

// Counts tallies jobs by queued, running and everything else
func (s Snapshot) Counts() Counts {
	c := Counts{Total: len(s.jobs)}
	for _, j := range s.jobs {
		switch {
		case j.Status.IsQueued():
			c.Queued++
		case j.Status.IsRunning():
			c.Running++
		case j.Status.IsTerminal():
			c.Other++
		}
	}
	return c
}
