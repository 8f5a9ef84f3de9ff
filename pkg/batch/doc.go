// Package batch groups pending notifications for a coordinated release at a
// scheduled time, the mechanism behind digests of low-priority items.
//
// A batch only aggregates notifications that have not entered delivery yet.
// At release time the scheduler hands each member to the dispatcher in order;
// per-member failures are recorded in the batch results while the batch
// itself still completes.
package batch
