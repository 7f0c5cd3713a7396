package commands

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gyrusdentatus/nym/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Reconnects        map[log.ReconnectOutcome]int
	Endpoints         map[string]*EndpointStats
	Connections       int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// EndpointStats holds statistics for a single remote endpoint.
type EndpointStats struct {
	FirstSeen    time.Time
	LastSeen     time.Time
	Events       int
	BytesOut     uint64
	BytesIn      uint64
	Connections  int
	Reconnects   int
	Errors       int
	Evicted      bool
	connectionID map[string]struct{}
}

// Collect reads path and aggregates its events.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Reconnects:        make(map[log.ReconnectOutcome]int),
		Endpoints:         make(map[string]*EndpointStats),
	}
	connections := make(map[string]struct{})

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByLayer[event.Layer]++
		stats.EventsByCategory[event.Category]++
		stats.EventsByDirection[event.Direction]++

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		if event.ConnectionID != "" {
			connections[event.ConnectionID] = struct{}{}
		}
		if event.Error != nil {
			stats.Errors++
		}
		if event.Reconnect != nil {
			stats.Reconnects[event.Reconnect.Outcome]++
		}

		if event.Endpoint == "" {
			continue
		}
		ep, ok := stats.Endpoints[event.Endpoint]
		if !ok {
			ep = &EndpointStats{
				FirstSeen:    event.Timestamp,
				LastSeen:     event.Timestamp,
				connectionID: make(map[string]struct{}),
			}
			stats.Endpoints[event.Endpoint] = ep
		}
		ep.add(event)
	}

	stats.Connections = len(connections)
	return stats, nil
}

func (ep *EndpointStats) add(event log.Event) {
	ep.Events++
	if event.Timestamp.After(ep.LastSeen) {
		ep.LastSeen = event.Timestamp
	}
	if event.ConnectionID != "" {
		if _, ok := ep.connectionID[event.ConnectionID]; !ok {
			ep.connectionID[event.ConnectionID] = struct{}{}
			ep.Connections++
		}
	}

	switch {
	case event.Frame != nil:
		if event.Direction == log.DirectionIn {
			ep.BytesIn += uint64(event.Frame.Size)
		} else {
			ep.BytesOut += uint64(event.Frame.Size)
		}
	case event.Reconnect != nil:
		ep.Reconnects++
	case event.Error != nil:
		ep.Errors++
	case event.StateChange != nil:
		if event.StateChange.Entity == log.StateEntityRoute && event.StateChange.NewState == "EVICTED" {
			ep.Evicted = true
		}
	}
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Transport Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %s\n", humanize.Comma(int64(stats.TotalEvents)))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerReconnect, log.LayerClient} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryData, log.CategoryState, log.CategoryReconnect, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.Reconnects) > 0 {
		fmt.Fprintln(w, "Reconnect Outcomes:")
		for _, o := range []log.ReconnectOutcome{log.ReconnectRetry, log.ReconnectConnected, log.ReconnectExhausted, log.ReconnectCancelled} {
			if count := stats.Reconnects[o]; count > 0 {
				fmt.Fprintf(w, "  %-12s %d\n", o.String()+":", count)
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Connections: %d\n", stats.Connections)
	fmt.Fprintf(w, "Endpoints:   %d\n", len(stats.Endpoints))

	addrs := make([]string, 0, len(stats.Endpoints))
	for addr := range stats.Endpoints {
		addrs = append(addrs, addr)
	}
	slices.Sort(addrs)

	if len(addrs) > 0 {
		fmt.Fprintln(w)
	}
	for _, addr := range addrs {
		ep := stats.Endpoints[addr]
		var flags []string
		if ep.Evicted {
			flags = append(flags, "evicted")
		}
		fmt.Fprintf(w, "  %s %d events, %s out, %s in, %d conns",
			addr, ep.Events, humanize.Bytes(ep.BytesOut), humanize.Bytes(ep.BytesIn), ep.Connections)
		if ep.Reconnects > 0 {
			fmt.Fprintf(w, ", %d reconnect events", ep.Reconnects)
		}
		if ep.Errors > 0 {
			fmt.Fprintf(w, ", %d errors", ep.Errors)
		}
		if len(flags) > 0 {
			fmt.Fprintf(w, " [%s]", strings.Join(flags, ","))
		}
		fmt.Fprintln(w)
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
