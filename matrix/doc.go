// SPDX-License-Identifier: MIT

// Package matrix provides the row-major Dense table that carries the global
// iterates of the consensus drivers (one row per scenario, one column per
// decision coordinate).
//
// Purpose:
//   - Keep every N×n iterate (z, x, y, u) in a single contiguous buffer with
//     the explicit offset formula i*cols + j.
//   - Safe public accessors: At/Set/Row/SetRow return sentinel errors instead
//     of panicking on bad indices or non-finite values.
//   - Zero-copy row views (RowView) for hot loops inside the drivers, where the
//     caller owns the bounds invariant.
//
// Determinism:
//   - Fixed loop orders, no map iteration, no hidden randomness.
//
// Complexity quicksheet:
//   - NewDense: O(r*c); At/Set: O(1); Row/SetRow: O(c); Clone/CopyFrom: O(r*c).
package matrix
