// Package domain models the coastal monitoring network: its sensor topology,
// the readings and hazard events the simulator emits, and the anomaly results
// attached to each reading before it leaves the service.
//
// # Sensor Categories
//
// Every sensor belongs to one of three categories. The category fixes the
// physical unit, the synthetic signal shape, and the plausibility range used
// when no trained model is available:
//
//	tide_gauge       meters   1.2 + 0.8·sin(2πh/12.42) + U(-0.2, 0.2)
//	weather_station  km/h     15 + 5·sin(2πh/24) + U(-3, 8), floored at 0
//	water_quality    index    75 + U(-5, 5), or 75 - U(20, 40) during a
//	                          pollution event (p = 0.05), clamped to [0, 100]
//
// h is the number of hours since the generator started. The 12.42 hour period
// is the principal lunar semidiurnal (M2) tide.
//
// Per-category constants live in [Profile] values rather than in switch
// statements, so adding a category means adding one table row.
//
// # Fallback Plausibility Ranges
//
//	tide_gauge       [-1, 3]   center 1.2   spread 2
//	weather_station  [0, 80]   center 15    spread 30
//	water_quality    [0, 100]  center 75    spread 25
//
// A reading outside its range is anomalous. The fallback score is
// min(1, |value - center| / spread).
//
// # Hazard Events
//
// Hazards are drawn independently per type on every sweep:
//
//	storm             p = 0.10   medium | high | critical
//	pollution         p = 0.15   low | medium | high
//	erosion           p = 0.08   low | medium | high
//	illegal_activity  p = 0.05   medium | high
//
// # ID Generation
//
// Reading IDs are truncated SHA-256 hashes of sensor|timestamp|value and
// hazard IDs are name-based UUIDs over type|lat|lon|timestamp. Both are stable
// across replays, which keeps downstream upserts idempotent.
package domain
