// Package battery raises rate-limited low-battery alerts.
package battery
