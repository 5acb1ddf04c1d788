// Package events carries task lifecycle notifications between components.
//
// The reconciler and the task service emit a TaskTransitionEvent every time
// they apply a status transition. Handlers such as the history recorder
// subscribe through an EventEmitter without the emitters knowing about them.
//
// The primary components are:
// - TaskTransitionEvent: one applied status change of a scan task
// - EventHandler: interface for components that react to events
// - EventEmitter: interface for components that publish events
package events
