// Package pipeline runs a sync as an ordered sequence of steps.
//
// Each step crawls one group of lists and records its fetches in a shared
// model.SyncReport. The order matters: subscriptions run first so their
// new items reach the tour, the tour runs last so it sees everything the
// other steps queued.
package pipeline
