/*
Package stresstest drives scenarios with a pool of virtual users and
keeps the results of every run.

# Overview

The package is a small k6-like runtime:
  - Fixed pool of virtual users (VUs), one goroutine each
  - Shared iteration budget or a wall clock duration
  - Optional iteration rate limit across all VUs
  - Setup hook that runs once before any VU starts
  - Thresholds evaluated after the run
  - Results persisted to SQLite

# Architecture

  1. Config (config.go): run options, records and validation
  2. Executor (executor.go): setup, VU pool, finalization
  3. Collector (collector.go): per-step statistics and sample buffering
  4. Manager (manager.go): runs, samples and check tallies in SQLite
  5. Thresholds (thresholds.go): "rate <op> <value>" expressions

# Executor Design

The Executor calls Flow.Setup exactly once. A setup error marks the run
aborted and is returned to the caller; no VU starts.

Each VU then asks the Flow for its iteration function, so per-user state
such as tokens or cookies lives in that closure and is never shared.
VUs claim iterations from a shared counter until the budget is spent.
When a duration is set, no new iteration starts after it elapses but
iterations in flight are allowed to finish.

# Metrics Collection

The Collector is installed as the observer of the HTTP client. For each
request it records:
  - Duration
  - Status code
  - Request/response sizes
  - Network errors
  - Failed requests (network errors and 4xx/5xx not expected by the step)

Statistics calculated per step and for the whole run:
  - Min/max/average duration
  - Percentiles (P50, P95, P99)
  - http_req_failed rate

# Thresholds

Two metrics can carry thresholds:

	checks:          rate of passed checks
	http_req_failed: rate of failed requests

StrictThresholds requires every check to pass and no request to fail.
Any crossed threshold makes Run return ErrThresholdsFailed.

# Database

Results go to a SQLite database. The default is in memory so nothing
outlives the process; passing a file path keeps the runs for later
queries. Scenario state (users, passwords, tokens) is never written.

# Thread Safety

Collector and Executor are safe for concurrent use by the VUs.
Manager relies on database/sql and a single connection.
*/
package stresstest
