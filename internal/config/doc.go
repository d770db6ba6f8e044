// Package config loads, validates, and saves family-guard settings.
//
// Settings live in a YAML file and cover the store location, sampling
// cadence, accuracy and battery thresholds, and alert merge windows.
// Validate fills defaults for any zero-valued tunable.
package config
