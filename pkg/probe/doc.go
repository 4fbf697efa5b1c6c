// Package probe checks that a released endpoint answers HTTP after a rollout.
// Probing is informational: a failed probe never fails the rollout.
package probe
