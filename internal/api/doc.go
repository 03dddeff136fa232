// Package api hosts read-only REST handlers for operator access. They are
// mounted on the metrics server next to /metrics and /healthz when Postgres
// is configured:
//   - GET /api/runs?status=&limit=&offset= lists recorded runs, newest first.
//   - GET /api/runs/{run_id} returns one run with its counters.
package api
