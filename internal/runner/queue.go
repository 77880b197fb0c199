package runner

import (
	"github.com/stargate-bridger/bridger/internal/eth"
)

// Task is one wallet waiting to be processed.
type Task struct {
	Index  int
	Signer eth.Signer
	// Proxy is empty for a direct connection.
	Proxy string
}

// Queue hands out wallets in order, each once.
type Queue struct {
	tasks []Task
	next  int
}

// NewQueue pairs each signer with a proxy. Proxies cycle when there are fewer of them than
// signers; with none every wallet connects directly.
func NewQueue(signers []eth.Signer, proxies []string) *Queue {
	q := &Queue{tasks: make([]Task, 0, len(signers))}
	for i, s := range signers {
		t := Task{Index: i, Signer: s}
		if len(proxies) > 0 {
			t.Proxy = proxies[i%len(proxies)]
		}
		q.tasks = append(q.tasks, t)
	}
	return q
}

func (q *Queue) Len() int { return len(q.tasks) }

func (q *Queue) Remaining() int { return len(q.tasks) - q.next }

func (q *Queue) Next() (Task, bool) {
	if q.next >= len(q.tasks) {
		return Task{}, false
	}
	t := q.tasks[q.next]
	q.next++
	return t, true
}
