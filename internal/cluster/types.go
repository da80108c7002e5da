package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Partition names one of the two static worker subsets.
type Partition string

const (
	// PartitionA holds the workers whose id is strictly greater than the threshold.
	PartitionA Partition = "A"
	// PartitionB holds the workers whose id is at or below the threshold.
	PartitionB Partition = "B"
)

// DefaultThreshold splits the reference pool of 8 workers into 5..8 (A) and 1..4 (B).
const DefaultThreshold = 4

// PartitionFor assigns a worker id to a partition. Ids are compared as integers.
func PartitionFor(workerID, threshold int) Partition {
	if workerID > threshold {
		return PartitionA
	}
	return PartitionB
}

// Contains reports whether workerID belongs to p under threshold.
func (p Partition) Contains(workerID, threshold int) bool {
	return PartitionFor(workerID, threshold) == p
}

// Valid reports whether p is one of the known partitions.
func (p Partition) Valid() bool {
	return p == PartitionA || p == PartitionB
}

// WorkerState is the manager's view of one worker process.
type WorkerState string

const (
	WorkerStarting WorkerState = "starting"
	WorkerLive     WorkerState = "live"
	WorkerExited   WorkerState = "exited"
)

// WorkerInfo describes one worker of the pool.
type WorkerInfo struct {
	ID        int         `json:"id"`
	Addr      string      `json:"addr"`
	Partition Partition   `json:"partition"`
	Dataset   string      `json:"dataset"`
	State     WorkerState `json:"state"`
	PID       int         `json:"pid,omitempty"`
	Health    string      `json:"health,omitempty"`
}

// UpdateCommand is the one-way message the manager pushes to a worker.
type UpdateCommand struct {
	ID       int64  `json:"id"`
	NewColor string `json:"newColor"`
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
