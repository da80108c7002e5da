// Package coordinator runs the master's side of the cluster: it owns the
// pool of worker processes, decides which partition each worker belongs to,
// and relays color updates to the workers of one partition.
//
// # Overview
//
// The master never serves tiles. It launches N worker processes (8 by
// default), each on its own port, and then acts purely as a control plane.
// Workers share no memory; the only cross-process channel is the one-way
// update push described below.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│              MASTER                 │
//	├─────────────────────────────────────┤
//	│  ┌──────────────────────────────┐   │
//	│  │   PartitionTable             │   │
//	│  │   - worker id → partition    │   │
//	│  │   - partition → dataset      │   │
//	│  └──────────────────────────────┘   │
//	│  ┌──────────────────────────────┐   │
//	│  │   Manager                    │   │
//	│  │   - launch + readiness wait  │   │
//	│  │   - exit watch, restart      │   │
//	│  │   - BroadcastUpdate          │   │
//	│  └──────────────────────────────┘   │
//	│  ┌──────────────────────────────┐   │
//	│  │   HealthMonitor              │   │
//	│  │   - periodic /health probes  │   │
//	│  └──────────────────────────────┘   │
//	└─────────────────────────────────────┘
//	        │ POST /control {id,newColor}
//	        ▼
//	  worker 1..4 (B, Tippecanoe)   worker 5..8 (A, London)
//
// # Partitions
//
// Worker ids run from 1 to N. A worker whose id is strictly greater than
// the threshold (4 by default) is in partition A and serves the London
// dataset; every other worker is in partition B and serves Tippecanoe.
// Assignments are fixed when the table is built and never migrate.
//
// # Broadcast
//
// BroadcastUpdate sends one UpdateCommand to every live worker of a
// partition. Each send runs in its own goroutine with a timeout and the call
// returns as soon as the sends are dispatched. There is no acknowledgment,
// no retry and no ordering guarantee between workers: two updates in quick
// succession may be applied in different orders on different workers. A
// send that fails is logged and counted, nothing more.
//
// # Worker lifecycle
//
//	starting ──ready──▶ live ──exit──▶ exited
//	    ▲                                 │
//	    └──────── restart (optional) ─────┘
//
// An exit is logged with the worker id, pid and exit code. Exited workers
// receive no broadcasts. With RestartOnExit the worker is relaunched on the
// same port after a backoff delay; it starts with a fresh replica and so
// diverges from its live peers until new updates arrive.
//
// The HealthMonitor covers the remaining failure mode: a process that is
// still running but has stopped answering HTTP.
package coordinator
