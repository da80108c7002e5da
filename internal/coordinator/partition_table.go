package coordinator

import (
	"fmt"
	"sort"

	"github.com/dreamware/tilepaint/internal/cluster"
)

// Assignment binds one worker to its partition and dataset.
// Assignments are made once, when the table is built, and never migrate.
type Assignment struct {
	// WorkerID identifies the worker. Valid range: [1, size].
	WorkerID int

	// Partition is A for ids above the threshold, B otherwise.
	Partition cluster.Partition

	// Dataset names the tileset the worker serves.
	Dataset string
}

// PartitionTable maps worker ids to partitions.
//
// The manager consults it when launching workers and when selecting the
// recipients of a broadcast. The table is immutable once built, so lookups
// need no locking.
type PartitionTable struct {
	// assignments maps worker ids to their assignment.
	assignments map[int]*Assignment

	// byPartition caches the sorted worker ids of each partition.
	byPartition map[cluster.Partition][]int

	size      int
	threshold int
}

// NewPartitionTable assigns workers 1..size to partitions using threshold.
// datasets names the dataset served by each partition.
func NewPartitionTable(size, threshold int, datasets map[cluster.Partition]string) (*PartitionTable, error) {
	if size < 1 {
		return nil, fmt.Errorf("invalid pool size %d", size)
	}
	if threshold < 0 {
		return nil, fmt.Errorf("invalid threshold %d", threshold)
	}

	t := &PartitionTable{
		assignments: make(map[int]*Assignment, size),
		byPartition: make(map[cluster.Partition][]int),
		size:        size,
		threshold:   threshold,
	}
	for id := 1; id <= size; id++ {
		p := cluster.PartitionFor(id, threshold)
		t.assignments[id] = &Assignment{
			WorkerID:  id,
			Partition: p,
			Dataset:   datasets[p],
		}
		t.byPartition[p] = append(t.byPartition[p], id)
	}
	return t, nil
}

// Assignment returns a copy of the assignment for workerID, or nil if the
// id is outside the pool.
func (t *PartitionTable) Assignment(workerID int) *Assignment {
	a, ok := t.assignments[workerID]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

// Workers returns the ids of the workers in p, ascending.
func (t *PartitionTable) Workers(p cluster.Partition) []int {
	return append([]int(nil), t.byPartition[p]...)
}

// All returns every assignment ordered by worker id.
func (t *PartitionTable) All() []Assignment {
	out := make([]Assignment, 0, len(t.assignments))
	for _, a := range t.assignments {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkerID < out[j].WorkerID })
	return out
}

// Size returns the number of workers in the pool.
func (t *PartitionTable) Size() int { return t.size }

// Threshold returns the partition boundary.
func (t *PartitionTable) Threshold() int { return t.threshold }
