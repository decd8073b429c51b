// Package domain holds the core data types of the campaign dispatch
// engine: campaigns, sender accounts with their quota windows, recipients,
// templates and import sessions. Types here carry no behavior beyond
// simple predicates; all persistence and dispatch logic lives in the
// repository and dispatch packages.
package domain
