package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dantte-lp/gogap/internal/ctlproto"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatPeers renders a slice of peers in the requested format.
func formatPeers(peers []ctlproto.PeerInfo, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatPeersJSON(peers)
	case formatTable:
		return formatPeersTable(peers), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatPeer renders a single peer in the requested format.
func formatPeer(peer ctlproto.PeerInfo, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatPeerJSON(peer)
	case formatTable:
		return formatPeerDetail(peer), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatEvent renders a pushed peer event in the requested format.
func formatEvent(ev ctlproto.EventPayload, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(ev, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal event to JSON: %w", err)
		}
		return string(data), nil
	case formatTable:
		return formatEventTable(ev), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- Table formatters ---

func formatPeersTable(peers []ctlproto.PeerInfo) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tADDRESS\tNAME\tTECH\tSTATE\tBONDED")

	for _, p := range peers {
		addr := "-"
		if len(p.Addresses) > 0 {
			addr = p.Addresses[0]
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%t\n",
			p.ID, addr, nameOrDash(p.Name), p.Technology, p.ConnState, p.Bonded)
	}

	_ = w.Flush()
	return buf.String()
}

func formatPeerDetail(p ctlproto.PeerInfo) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "ID:\t%d\n", p.ID)
	fmt.Fprintf(w, "Addresses:\t%s\n", strings.Join(p.Addresses, ", "))
	fmt.Fprintf(w, "Name:\t%s\n", nameOrDash(p.Name))
	fmt.Fprintf(w, "Technology:\t%s\n", p.Technology)
	fmt.Fprintf(w, "Connection State:\t%s\n", p.ConnState)
	fmt.Fprintf(w, "Temporary:\t%t\n", p.Temporary)
	fmt.Fprintf(w, "Bonded:\t%t\n", p.Bonded)

	_ = w.Flush()
	return buf.String()
}

func formatEventTable(ev ctlproto.EventPayload) string {
	addr := "-"
	if len(ev.Peer.Addresses) > 0 {
		addr = ev.Peer.Addresses[0]
	}
	return fmt.Sprintf("%s  peer=%d  addr=%s  state=%s", ev.Type, ev.Peer.ID, addr, ev.Peer.ConnState)
}

func nameOrDash(name string) string {
	if name == "" {
		return "-"
	}
	return name
}

// --- JSON formatters ---

func formatPeersJSON(peers []ctlproto.PeerInfo) (string, error) {
	data, err := json.MarshalIndent(peers, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal peers to JSON: %w", err)
	}
	return string(data), nil
}

func formatPeerJSON(peer ctlproto.PeerInfo) (string, error) {
	data, err := json.MarshalIndent(peer, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal peer to JSON: %w", err)
	}
	return string(data), nil
}
