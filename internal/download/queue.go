package download

import (
	"github.com/Workiva/go-datastructures/queue"
)

// job is a request waiting in the priority queue. Lower Compare values
// are served first.
type job struct {
	index    int
	priority Priority
	seq      uint64
	attempts int
}

func (j *job) Compare(other queue.Item) int {
	o := other.(*job)
	if j.priority != o.priority {
		if j.priority > o.priority {
			return -1
		}
		return 1
	}
	switch {
	case j.seq < o.seq:
		return -1
	case j.seq > o.seq:
		return 1
	}
	return 0
}
