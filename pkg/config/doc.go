// Package config loads client settings from YAML.
//
// A file lists the bootstrap endpoints and the reconnection policy:
//
//	endpoints: ["10.0.0.1:1789", "10.0.0.2:1789"]
//	initial_backoff: 1s
//	max_backoff: 60s
//	max_attempts: 10
//	connect_timeout: 10s
//	strict_bootstrap: false
//	discovery:
//	  enabled: true
//	  timeout: 2s
//
// Fields left out keep the values from Default. Durations use
// time.ParseDuration syntax.
package config
