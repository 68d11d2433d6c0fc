// Package api hosts the operator HTTP surface. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/progress for per-stage resume state.
//   - GET /api/parcels/{parcel_id} for a scraped parcel record.
//   - GET /api/stats for run totals.
package api
