// Package testutil provides shared fakes for tests: a thread-safe log
// buffer, an event recorder and scripted runners.
package testutil
