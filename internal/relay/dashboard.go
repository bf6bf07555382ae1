package relay

import (
	"context"
	"fmt"
	"io"
	"time"
)

const dashboardRefresh = 1 * time.Second

// RunDashboard renders a periodically-refreshed terminal summary until
// ctx is cancelled. It is deliberately plain (clear-screen + fmt.Fprintf
// tables): no TUI library appears anywhere in the example corpus, so
// this stays on the standard library rather than introducing one for a
// component spec.md explicitly scopes as minimal (§1, §6).
func RunDashboard(ctx context.Context, w io.Writer, m *Metrics) {
	ticker := time.NewTicker(dashboardRefresh)
	defer ticker.Stop()
	for {
		render(w, m.Snapshot())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func render(w io.Writer, s Snapshot) {
	fmt.Fprint(w, "\x1b[H\x1b[2J") // cursor home + clear screen
	fmt.Fprintf(w, "Cider Relay  peer=%s  uptime=%s\n", s.PeerID, s.Uptime.Round(time.Second))
	fmt.Fprintf(w, "listen  tcp=%d quic=%d  public_ip=%s  reachable=%s\n",
		s.TCPPort, s.QUICPort, orDash(s.PublicIP), reachableLabel(s.PortReachable))
	fmt.Fprintf(w, "peers   connected=%d verified=%d peak=%d total=%d\n",
		s.ConnectedPeers, s.VerifiedPeers, s.PeakConnections, s.TotalConnections)
	fmt.Fprintf(w, "relay   reservations active=%d total=%d  circuits active=%d total=%d\n\n",
		s.ActiveReservations, s.TotalReservations, s.ActiveCircuits, s.TotalCircuits)

	fmt.Fprintln(w, "recent log:")
	start := 0
	if len(s.Logs) > 15 {
		start = len(s.Logs) - 15
	}
	for _, entry := range s.Logs[start:] {
		fmt.Fprintf(w, "  [%s] %-5s %s\n", entry.At.Format("15:04:05"), entry.Level, entry.Message)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func reachableLabel(b *bool) string {
	if b == nil {
		return "unknown"
	}
	if *b {
		return "yes"
	}
	return "no"
}
