// Package main hosts the jobhistoryd entrypoint.
//
// Architecture overview:
//   - Crawl loop: internal/harness runs the worker lifecycle. A Roster
//     assigns the worker one partition of the job space, the Spout opens
//     shared state and emits crawl rounds, and the Runner paces rounds,
//     idling when a round finds no new work.
//   - Crawl rounds: internal/crawl lists history artifacts newer than
//     the partition watermark minus a lookback window, filters them to
//     the jobs this partition owns, skips already-processed jobs, and
//     hands the rest to the callback chain (parse, publish, journal)
//     before advancing the watermark.
//   - Coordination: internal/state keeps per-partition watermarks,
//     processed-job markers, and distributed locks in etcd (or an
//     in-memory store for development), so workers crash and resume
//     without re-emitting jobs. internal/runningjob tracks in-flight
//     applications under per-app locks for restart recovery.
//   - Fanout: parsed records publish to Pub/Sub, per-artifact audit
//     entries land in Postgres, and partition zero reports the fleet's
//     low-water mark to the monitoring backend's REST API.
//   - Plumbing: Viper populates config from a YAML file and JOBHISTORY_*
//     environment variables; zap provides structured logging; Prometheus
//     metrics are served by the ops HTTP server next to health and
//     partition-inspection endpoints.
//
// Operational notes:
//   - Scale out by running one process per partition with static
//     assignment, or switch to roster assignment and let live etcd
//     membership derive each worker's partition.
//   - Shutdown is coordinated via context cancellation: SIGTERM drains
//     the crawl loop, stops the ops server, and releases coordination
//     leases so a replacement worker takes over within the session TTL.
//   - Run locally: go run . crawl --config config.yaml with the memory
//     providers and a local history directory.
package main

import (
	"github.com/clustermon/jobhistory-crawler/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
