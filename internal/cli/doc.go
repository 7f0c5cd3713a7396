// Package cli holds the setup shared by the mixtcp commands: operational
// logging, protocol event logging, the metrics endpoint and allow-list
// parsing.
package cli
