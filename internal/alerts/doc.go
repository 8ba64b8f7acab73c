// Package alerts delivers out-of-band notifications for queued messages:
// an async pipeline of queue + worker pool + rate limit + retry in front of
// a mail backend.
//
// The engine decides WHETHER to alert; this package only decides HOW the
// alert leaves the process.
package alerts
