// Package state persists per-video, per-stage pipeline progress in
// SQLite. It is the checkpoint/resume backbone: stage runs consult it
// to skip completed work, select retry candidates, and record outcomes
// item by item so interrupted runs resume without losing or repeating
// work.
package state
