// Package storage persists the notification state: alias sets, groups,
// queued messages, presence records, and alert subscriptions.
//
// The engine owns all state in memory and writes through. Load runs once at
// startup; mutations arrive one at a time from under the engine lock, so
// implementations need no internal locking beyond what database/sql gives.
package storage
