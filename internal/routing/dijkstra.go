package routing

import (
	"container/heap"
	"context"
	"errors"
	"fmt"

	"github.com/passbi/railroute/internal/models"
)

// ErrNoPath is returned when the frontier empties without reaching a goal state
var ErrNoPath = errors.New("no path found")

// State is the identity of a search node. Less orders states with equal
// tentative cost in the frontier so searches are deterministic.
type State[S any] interface {
	comparable
	Less(other S) bool
}

// Edge is an outgoing transition. Label is nil for transfers that carry no travel.
type Edge[S any] struct {
	To    S
	Cost  int64
	Label *models.Segment
}

// Space is a state graph defined by its successor function.
// Every edge cost must be non-negative.
type Space[S any] interface {
	Successors(s S) []Edge[S]
	IsGoal(s S) bool
}

// Step is the predecessor record of a reached state
type Step[S any] struct {
	Parent    S
	HasParent bool
	Label     *models.Segment
}

// Result is the outcome of a successful search
type Result[S comparable] struct {
	Goal     S
	Cost     int64
	Prev     map[S]Step[S]
	Explored int
}

// Dijkstra runs a single-source shortest path search from start and stops at
// the first goal state popped from the frontier.
// Stale frontier entries are skipped instead of decreased in place.
func Dijkstra[S State[S]](ctx context.Context, space Space[S], start S) (*Result[S], error) {
	dist := map[S]int64{start: 0}
	prev := map[S]Step[S]{start: {}}

	openSet := &priorityQueue[S]{}
	heap.Init(openSet)
	heap.Push(openSet, &queueItem[S]{state: start, cost: 0})

	explored := 0
	for openSet.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("search cancelled: %w", err)
		}

		current := heap.Pop(openSet).(*queueItem[S])
		if best, ok := dist[current.state]; ok && current.cost > best {
			continue
		}
		explored++

		if space.IsGoal(current.state) {
			return &Result[S]{Goal: current.state, Cost: current.cost, Prev: prev, Explored: explored}, nil
		}

		for _, edge := range space.Successors(current.state) {
			tentative := current.cost + edge.Cost
			if best, ok := dist[edge.To]; ok && tentative >= best {
				continue
			}
			dist[edge.To] = tentative
			prev[edge.To] = Step[S]{Parent: current.state, HasParent: true, Label: edge.Label}
			heap.Push(openSet, &queueItem[S]{state: edge.To, cost: tentative})
		}
	}

	return nil, fmt.Errorf("%w after exploring %d states", ErrNoPath, explored)
}

// Rooted wraps a state space's states with a synthetic root
type Rooted[S State[S]] struct {
	Root  bool
	State S
}

// Less places the root before every real state
func (r Rooted[S]) Less(o Rooted[S]) bool {
	if r.Root != o.Root {
		return r.Root
	}
	return r.State.Less(o.State)
}

type superSource[S State[S]] struct {
	space  Space[S]
	starts []S
}

// WithSuperSource turns a multi-start query into a single-source one: the
// root state has a zero-cost unlabeled edge to every start state.
func WithSuperSource[S State[S]](space Space[S], starts []S) Space[Rooted[S]] {
	return &superSource[S]{space: space, starts: starts}
}

// SuperSource is the start state of a space built by WithSuperSource
func SuperSource[S State[S]]() Rooted[S] {
	return Rooted[S]{Root: true}
}

func (s *superSource[S]) Successors(r Rooted[S]) []Edge[Rooted[S]] {
	if r.Root {
		edges := make([]Edge[Rooted[S]], 0, len(s.starts))
		for _, st := range s.starts {
			edges = append(edges, Edge[Rooted[S]]{To: Rooted[S]{State: st}})
		}
		return edges
	}

	inner := s.space.Successors(r.State)
	edges := make([]Edge[Rooted[S]], 0, len(inner))
	for _, e := range inner {
		edges = append(edges, Edge[Rooted[S]]{To: Rooted[S]{State: e.To}, Cost: e.Cost, Label: e.Label})
	}
	return edges
}

func (s *superSource[S]) IsGoal(r Rooted[S]) bool {
	return !r.Root && s.space.IsGoal(r.State)
}

// queueItem is a frontier entry
type queueItem[S any] struct {
	state S
	cost  int64
	index int // for heap
}

// priorityQueue implements heap.Interface ordered by cost, then state
type priorityQueue[S State[S]] []*queueItem[S]

func (pq priorityQueue[S]) Len() int { return len(pq) }

func (pq priorityQueue[S]) Less(i, j int) bool {
	if pq[i].cost != pq[j].cost {
		return pq[i].cost < pq[j].cost
	}
	return pq[i].state.Less(pq[j].state)
}

func (pq priorityQueue[S]) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue[S]) Push(x interface{}) {
	item := x.(*queueItem[S])
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue[S]) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[0 : n-1]
	return item
}
