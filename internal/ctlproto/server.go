package ctlproto

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/dantte-lp/gogap/internal/gap"
)

// ErrUnknownMethod is returned to the client when a request names a
// method the Server does not recognize.
var ErrUnknownMethod = errors.New("ctlproto: unknown method")

// Server is the gapd-side control protocol endpoint: it accepts Unix
// domain socket connections from gapctl, dispatches one method per
// request exactly like the sibling project's BFDServer dispatches one
// ConnectRPC method per handler, and pushes Peer Cache events to any
// connection that has called WatchEvents.
type Server struct {
	conn    *gap.ConnectionManager
	bredr   *gap.BREDRDiscoveryManager
	le      *gap.LEDiscoveryManager
	cache   gap.PeerCache
	logger  *slog.Logger

	mu           sync.Mutex
	discoverySes *gap.DiscoverySession
	discoverable *gap.DiscoverableSession
	scanSession  *gap.LEScanSession
}

// NewServer builds a Server wired to the daemon's live GAP components.
func NewServer(conn *gap.ConnectionManager, bredr *gap.BREDRDiscoveryManager, le *gap.LEDiscoveryManager, cache gap.PeerCache, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{conn: conn, bredr: bredr, le: le, cache: cache, logger: logger.With(slog.String("component", "ctlproto"))}
}

// Serve accepts connections on ln until ctx is canceled or ln is closed.
// Each connection is handled on its own goroutine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ctlproto: accept: %w", err)
		}
		go s.handleConn(ctx, c)
	}
}

func (s *Server) handleConn(ctx context.Context, c net.Conn) {
	defer c.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeMu sync.Mutex
	r := bufio.NewReader(c)

	var observer *connObserver
	for {
		f, err := readFrame(r)
		if err != nil {
			return
		}
		if f.Kind != kindRequest {
			continue
		}

		if f.Method == MethodWatchEvents && observer == nil {
			observer = newConnObserver(connCtx, c, &writeMu, s.logger)
			s.cache.Observe(observer)
		}

		result, handlerErr := s.dispatch(connCtx, f.Method, f.Params)
		resp := Frame{Kind: kindResponse, ID: f.ID}
		if handlerErr != nil {
			resp.Error = handlerErr.Error()
		} else if result != nil {
			b, err := json.Marshal(result)
			if err != nil {
				resp.Error = err.Error()
			} else {
				resp.Result = b
			}
		}

		writeMu.Lock()
		err = writeFrame(c, resp)
		writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case MethodListPeers:
		return s.listPeers(), nil
	case MethodGetPeer:
		var p GetPeerParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return s.getPeer(p)
	case MethodConnect:
		var p ConnectParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, s.connect(p)
	case MethodDisconnect:
		var p DisconnectParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if !s.conn.Disconnect(gap.PeerId(p.ID), gap.DisconnectReasonApiRequest) {
			return nil, fmt.Errorf("ctlproto: disconnect peer %d: unknown peer", p.ID)
		}
		return nil, nil
	case MethodPair:
		var p PairParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, s.pair(p)
	case MethodDiscoverStart:
		return nil, s.discoverStart()
	case MethodDiscoverStop:
		return nil, s.discoverStop()
	case MethodScanStart:
		return nil, s.scanStart()
	case MethodScanStop:
		return nil, s.scanStop()
	case MethodAdapterConnectable:
		var p AdapterConnectableParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return nil, s.adapterConnectable(ctx, p)
	case MethodWatchEvents:
		return nil, nil
	default:
		return nil, fmt.Errorf("%s: %w", method, ErrUnknownMethod)
	}
}

func (s *Server) listPeers() ListPeersResult {
	type snapshotter interface{ Snapshot() []gap.PeerSnapshot }
	sn, ok := s.cache.(snapshotter)
	if !ok {
		return ListPeersResult{}
	}
	snaps := sn.Snapshot()
	out := make([]PeerInfo, 0, len(snaps))
	for _, p := range snaps {
		out = append(out, peerInfoFromSnapshot(p))
	}
	return ListPeersResult{Peers: out}
}

func (s *Server) getPeer(p GetPeerParams) (GetPeerResult, error) {
	peer, ok := s.cache.FindById(gap.PeerId(p.ID))
	if !ok {
		return GetPeerResult{}, fmt.Errorf("ctlproto: peer %d: %w", p.ID, gap.ErrPeerNotFound)
	}
	return GetPeerResult{Peer: peerInfoFromSnapshot(peer.Snapshot())}, nil
}

func (s *Server) connect(p ConnectParams) error {
	addr, err := gap.ParseDeviceAddress(p.Address)
	if err != nil {
		return fmt.Errorf("ctlproto: connect: %w", err)
	}
	peer := s.cache.NewPeer(addr, true)
	return s.conn.Connect(peer.Id, func(err error, _ *gap.ConnectionHandle) {
		if err != nil {
			s.logger.Warn("connect failed", slog.String("peer", addr.String()), slog.String("error", err.Error()))
		}
	})
}

func (s *Server) pair(p PairParams) error {
	done := make(chan error, 1)
	s.conn.Pair(gap.PeerId(p.ID), gap.SecurityRequirements{Authenticated: true}, func(err error) {
		done <- err
	})
	return <-done
}

func (s *Server) discoverStart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discoverySes != nil {
		return nil
	}
	s.discoverySes = s.bredr.StartDiscovery(func(peer *gap.Peer) {})
	return nil
}

func (s *Server) discoverStop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discoverySes == nil {
		return nil
	}
	s.discoverySes.Destroy()
	s.discoverySes = nil
	return nil
}

func (s *Server) scanStart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanSession != nil {
		return nil
	}
	s.scanSession = s.le.StartDiscovery(gap.LEScanFilter{}, func(adv gap.LEAdvertisement) {})
	return nil
}

func (s *Server) scanStop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanSession == nil {
		return nil
	}
	s.scanSession.Destroy()
	s.scanSession = nil
	return nil
}

func (s *Server) adapterConnectable(ctx context.Context, p AdapterConnectableParams) error {
	done := make(chan error, 1)
	s.conn.SetConnectable(ctx, p.Connectable, func(err error) { done <- err })
	return <-done
}

func peerInfoFromSnapshot(p gap.PeerSnapshot) PeerInfo {
	addrs := make([]string, 0, len(p.Addresses))
	for _, a := range p.Addresses {
		addrs = append(addrs, a.String())
	}
	return PeerInfo{
		ID:         uint64(p.Id),
		Addresses:  addrs,
		Technology: p.Technology.String(),
		Temporary:  p.Temporary,
		Bonded:     p.Bonded,
		ConnState:  p.ConnState.String(),
		Name:       p.Name,
	}
}

// -------------------------------------------------------------------------
// Event fan-out
// -------------------------------------------------------------------------

// connObserver adapts one client connection's WatchEvents subscription
// to the gap.CacheObserver contract.
type connObserver struct {
	ctx     context.Context
	conn    net.Conn
	writeMu *sync.Mutex
	logger  *slog.Logger
}

func newConnObserver(ctx context.Context, conn net.Conn, writeMu *sync.Mutex, logger *slog.Logger) *connObserver {
	return &connObserver{ctx: ctx, conn: conn, writeMu: writeMu, logger: logger}
}

func (o *connObserver) OnPeerUpdated(p *gap.Peer) { o.send("peer_updated", p) }
func (o *connObserver) OnPeerBonded(p *gap.Peer)  { o.send("peer_bonded", p) }

func (o *connObserver) send(typ string, p *gap.Peer) {
	if o.ctx.Err() != nil {
		return
	}
	ev := EventPayload{Type: typ, Peer: peerInfoFromSnapshot(p.Snapshot())}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}

	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	if err := writeFrame(o.conn, Frame{Kind: kindEvent, Event: b}); err != nil {
		o.logger.Debug("ctlproto: event delivery failed", slog.String("error", err.Error()))
	}
}
