// Package cluster holds the types shared by the master and the workers of a
// tilepaint pool, and the small HTTP/JSON helpers they talk through.
//
// # Topology
//
// One master process owns the admin API and a fixed pool of worker processes.
// Every worker serves tiles from its own port and owns its own color replica:
//
//	              ┌──────────────┐
//	              │    Master    │
//	              │  admin API   │
//	              │  broadcasts  │
//	              └──────┬───────┘
//	                     │ POST /control {id,newColor}
//	      ┌──────────────┼──────────────┐
//	      │              │              │
//	┌─────▼─────┐  ┌─────▼─────┐  ┌─────▼─────┐
//	│ Worker 1  │  │ Worker 4  │  │ Worker 5  │  ...
//	│ part. B   │  │ part. B   │  │ part. A   │
//	└───────────┘  └───────────┘  └───────────┘
//
// # Partitions
//
// A worker's partition is fixed when the pool starts: ids strictly greater than
// the threshold form partition A, ids at or below it form partition B. The
// comparison is always on integers (PartitionFor); with the default threshold
// of 4, worker 5 is in A and worker 3 is in B.
//
// # Update protocol
//
// UpdateCommand is pushed one way from the master to each live worker of a
// partition. Delivery is at-most-once and unacknowledged; two workers may apply
// the same command at different times, so replicas converge only eventually.
package cluster
