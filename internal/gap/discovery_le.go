package gap

import (
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dantte-lp/gogap/internal/hcicodec"
)

// LEScanFilter narrows which advertisements a session's callback sees.
// A zero-value filter matches everything.
type LEScanFilter struct {
	ServiceUUIDs   []string
	NameSubstring  string
	Connectable    *bool // nil: no constraint
	MinRSSI        int8
	HasMinRSSI     bool
}

func (f LEScanFilter) matches(adv *LEAdvertisement) bool {
	if f.Connectable != nil && adv.Connectable != *f.Connectable {
		return false
	}
	if f.HasMinRSSI && adv.RSSI < f.MinRSSI {
		return false
	}
	if f.NameSubstring != "" && !strings.Contains(adv.LocalName, f.NameSubstring) {
		return false
	}
	if len(f.ServiceUUIDs) > 0 {
		found := false
		for _, want := range f.ServiceUUIDs {
			if _, ok := adv.ServiceUUIDs[want]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// LEAdvertisement is a parsed advertising report, cached per scan period
// for replay to newly started sessions.
type LEAdvertisement struct {
	Addr          DeviceAddress
	Connectable   bool
	RSSI          int8
	LocalName     string
	ServiceUUIDs  map[string]struct{}
	Peer          *Peer
}

// LEDiscoveryMode selects whether a session requires Active Discovery
// (the session sees active-scan-only fields and drives scan enable) or
// is content with the passive Background Scan.
type LEDiscoveryMode uint8

const (
	LEModeActive LEDiscoveryMode = iota
	LEModeBackground
)

// LEScanSession is the RAII token returned by both StartDiscovery and
// StartBackgroundScan.
type LEScanSession struct {
	mgr      *LEDiscoveryManager
	id       uint64
	mode     LEDiscoveryMode
	released atomic.Bool
}

// Destroy releases the session's hold on the shared scanner.
func (s *LEScanSession) Destroy() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	s.mgr.removeSession(s.id)
}

type leSession struct {
	id       uint64
	mode     LEDiscoveryMode
	filter   LEScanFilter
	cb       func(adv LEAdvertisement)
	seenThis map[DeviceAddress]struct{} // dedup within the current scan period
}

// LEDiscoveryManager is the LE Discovery Manager (§4.4): Active Discovery
// and Background Scan sessions share one underlying LE scanner, active
// taking precedence over passive-only parameters. The scan period rotates
// on a jittered timer, disabling and re-enabling scan (which the
// controller uses to roll a new resolvable private address) and replaying
// cached advertisements to sessions starting mid-period.
//
// Grounded on the sibling project's session-timer jitter
// (session.go/timers.go's detection-timeout jitter) generalized from a
// per-session timer to one shared scan-period timer.
type LEDiscoveryManager struct {
	mu sync.Mutex

	sessions map[uint64]*leSession
	nextID   atomic.Uint64

	scanEnabled bool
	activeMode  bool // true while ≥1 Active Discovery session is open

	cached map[DeviceAddress]LEAdvertisement

	periodTimer *time.Timer
	periodBase  time.Duration

	scanWindow   uint16
	scanInterval uint16

	transport Transport
	cache     PeerCache
	logger    *slog.Logger
}

const (
	defaultScanPeriod   = 10240 * time.Millisecond
	defaultScanWindow   = 0x0010
	defaultScanInterval = 0x0010

	scanPeriodJitterFrac = 0.1
)

// LEDiscoveryOption configures an LEDiscoveryManager at construction time.
type LEDiscoveryOption func(*LEDiscoveryManager)

// WithScanPeriod overrides the scan-period rotation duration.
func WithScanPeriod(d time.Duration) LEDiscoveryOption {
	return func(m *LEDiscoveryManager) { m.periodBase = d }
}

// WithScanParameters overrides the LE Set Scan Parameters window/interval
// fields (0.625ms units).
func WithScanParameters(window, interval uint16) LEDiscoveryOption {
	return func(m *LEDiscoveryManager) { m.scanWindow = window; m.scanInterval = interval }
}

// NewLEDiscoveryManager creates an LE Discovery Manager driven by
// transport, publishing observed peers through cache.
func NewLEDiscoveryManager(transport Transport, cache PeerCache, logger *slog.Logger, opts ...LEDiscoveryOption) *LEDiscoveryManager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &LEDiscoveryManager{
		sessions:     make(map[uint64]*leSession),
		cached:       make(map[DeviceAddress]LEAdvertisement),
		periodBase:   defaultScanPeriod,
		scanWindow:   defaultScanWindow,
		scanInterval: defaultScanInterval,
		transport:    transport,
		cache:        cache,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartDiscovery opens an Active Discovery session: the callback sees
// every field an active scan response can add (local name, services)
// and the shared scanner is forced into active mode for as long as this
// session is open.
func (m *LEDiscoveryManager) StartDiscovery(filter LEScanFilter, cb func(adv LEAdvertisement)) *LEScanSession {
	return m.startSession(LEModeActive, filter, cb)
}

// StartBackgroundScan opens a passive session restricted to peers
// already known to the cache as connectable; it never creates new Peer
// entries.
func (m *LEDiscoveryManager) StartBackgroundScan(filter LEScanFilter, cb func(adv LEAdvertisement)) *LEScanSession {
	return m.startSession(LEModeBackground, filter, cb)
}

func (m *LEDiscoveryManager) startSession(mode LEDiscoveryMode, filter LEScanFilter, cb func(adv LEAdvertisement)) *LEScanSession {
	id := m.nextID.Add(1)
	sess := &leSession{id: id, mode: mode, filter: filter, cb: cb, seenThis: make(map[DeviceAddress]struct{})}

	m.mu.Lock()
	m.sessions[id] = sess
	wasEnabled := m.scanEnabled
	wasActive := m.activeMode
	if mode == LEModeActive {
		m.activeMode = true
	}
	cached := make([]LEAdvertisement, 0, len(m.cached))
	for _, adv := range m.cached {
		cached = append(cached, adv)
	}
	m.mu.Unlock()

	if !wasEnabled {
		m.enableScan()
	} else if mode == LEModeActive && !wasActive {
		m.restartScanForModeChange()
	}

	// Replay this period's cache so a late-starting session doesn't wait
	// a full period for its first report.
	for _, adv := range cached {
		m.deliverToSession(sess, adv)
	}

	return &LEScanSession{mgr: m, id: id, mode: mode}
}

func (m *LEDiscoveryManager) removeSession(id uint64) {
	m.mu.Lock()
	delete(m.sessions, id)
	noneLeft := len(m.sessions) == 0
	stillActive := false
	for _, s := range m.sessions {
		if s.mode == LEModeActive {
			stillActive = true
			break
		}
	}
	wasActive := m.activeMode
	m.activeMode = stillActive
	m.mu.Unlock()

	if noneLeft {
		m.disableScan()
	} else if wasActive && !stillActive {
		m.restartScanForModeChange()
	}
}

func (m *LEDiscoveryManager) enableScan() {
	m.mu.Lock()
	m.scanEnabled = true
	active := m.activeMode
	m.mu.Unlock()

	scanType := uint8(0x00) // passive
	if active {
		scanType = uint8(0x01) // active
	}
	_ = m.transport.Send(hcicodec.LESetScanParameters(scanType, m.scanInterval, m.scanWindow, 0x00, 0x00))
	_ = m.transport.Send(hcicodec.LESetScanEnable(true, true))

	m.scheduleNextPeriod()
}

func (m *LEDiscoveryManager) disableScan() {
	m.mu.Lock()
	m.scanEnabled = false
	if m.periodTimer != nil {
		m.periodTimer.Stop()
	}
	m.mu.Unlock()
	_ = m.transport.Send(hcicodec.LESetScanEnable(false, false))
}

// restartScanForModeChange disables and immediately re-enables the
// scanner with updated parameters when precedence flips between Active
// and Background, exactly as a period rotation does.
func (m *LEDiscoveryManager) restartScanForModeChange() {
	_ = m.transport.Send(hcicodec.LESetScanEnable(false, false))
	scanType := uint8(0x00)
	m.mu.Lock()
	if m.activeMode {
		scanType = 0x01
	}
	m.mu.Unlock()
	_ = m.transport.Send(hcicodec.LESetScanParameters(scanType, m.scanInterval, m.scanWindow, 0x00, 0x00))
	_ = m.transport.Send(hcicodec.LESetScanEnable(true, true))
}

func (m *LEDiscoveryManager) scheduleNextPeriod() {
	jitter := time.Duration(float64(m.periodBase) * scanPeriodJitterFrac * (rand.Float64()*2 - 1))
	d := m.periodBase + jitter
	m.periodTimer = time.AfterFunc(d, m.rotatePeriod)
}

// rotatePeriod disables then re-enables scan (rolling the controller's
// resolvable private address) and replays the just-completed period's
// cache, resetting each session's per-period dedup set.
func (m *LEDiscoveryManager) rotatePeriod() {
	m.mu.Lock()
	if !m.scanEnabled {
		m.mu.Unlock()
		return
	}
	cached := make([]LEAdvertisement, 0, len(m.cached))
	for _, adv := range m.cached {
		cached = append(cached, adv)
	}
	m.cached = make(map[DeviceAddress]LEAdvertisement)
	for _, s := range m.sessions {
		s.seenThis = make(map[DeviceAddress]struct{})
	}
	sessions := make([]*leSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	_ = m.transport.Send(hcicodec.LESetScanEnable(false, false))
	_ = m.transport.Send(hcicodec.LESetScanEnable(true, true))

	for _, adv := range cached {
		for _, s := range sessions {
			m.deliverToSession(s, adv)
		}
	}

	m.mu.Lock()
	m.scheduleNextPeriod()
	m.mu.Unlock()
}

// HandleEvent processes LE Meta Event advertising reports.
func (m *LEDiscoveryManager) HandleEvent(ev Event) {
	if ev.Code != hcicodec.EvLEMeta {
		return
	}
	reports, err := hcicodec.DecodeLEAdvertisingReport(ev.Params)
	if err != nil {
		return
	}
	for _, r := range reports {
		m.handleReport(r)
	}
}

func (m *LEDiscoveryManager) handleReport(r hcicodec.LEAdvertisingReportItem) {
	addr := wireToAddr(r.Address, leAddrType(r.AddressType))
	connectable := r.EventType&0x01 != 0

	existingPeer, existed := m.cache.FindByAddress(addr)

	// Background Scan never creates new entries: a peer unknown to the
	// cache is silently dropped unless an Active Discovery session also
	// wants it.
	m.mu.Lock()
	hasActive := false
	for _, s := range m.sessions {
		if s.mode == LEModeActive {
			hasActive = true
			break
		}
	}
	m.mu.Unlock()

	if !existed && !hasActive {
		return
	}

	peer := existingPeer
	if !existed {
		peer = m.cache.NewPeer(addr, connectable)
	}

	m.upgradeDualMode(peer, addr)

	name, uuids := parseAdvertisingData(r.Data)
	adv := LEAdvertisement{
		Addr:         addr,
		Connectable:  connectable,
		RSSI:         r.RSSI,
		LocalName:    name,
		ServiceUUIDs: uuids,
		Peer:         peer,
	}
	if name != "" {
		peer.Capability.Name = name
		peer.Capability.NameSource = "le-advertising-data"
	}

	m.mu.Lock()
	m.cached[addr] = adv
	sessions := make([]*leSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		if s.mode == LEModeBackground && (!existed || !peer.Connectable) {
			continue // background sessions only ever see already-cached connectable peers
		}
		m.deliverToSession(s, adv)
	}
}

// upgradeDualMode merges an LE observation whose raw 48-bit address
// matches an existing BR/EDR-only peer (or vice versa) into a single
// DualMode Peer record, symmetric with the inbound-BR/EDR-connection
// case handled in conn_manager.go's handleConnectionRequest.
func (m *LEDiscoveryManager) upgradeDualMode(peer *Peer, addr DeviceAddress) {
	if peer.Technology == TechnologyDualMode {
		return
	}
	for _, other := range m.cache.AllConnectable() {
		if other.Id == peer.Id {
			continue
		}
		for _, a := range other.Addresses {
			if a.SameBytes(addr) && !a.Equal(addr) {
				peer.Technology = TechnologyDualMode
				peer.Addresses = append(peer.Addresses, a)
				return
			}
		}
	}
}

func (m *LEDiscoveryManager) deliverToSession(s *leSession, adv LEAdvertisement) {
	m.mu.Lock()
	_, seen := s.seenThis[adv.Addr]
	if !seen {
		s.seenThis[adv.Addr] = struct{}{}
	}
	m.mu.Unlock()
	if seen {
		return
	}
	if !s.filter.matches(&adv) {
		return
	}
	s.cb(adv)
}

// parseAdvertisingData walks a Bluetooth Advertising Data / EIR
// structure (length-prefixed [AD type][AD data] records) for the two
// fields filters and capability snapshots care about: the local name
// (AD types 0x08/0x09) and 16-bit service class UUIDs (AD type 0x03).
func parseAdvertisingData(data []byte) (string, map[string]struct{}) {
	uuids := make(map[string]struct{})
	name := ""
	for i := 0; i < len(data); {
		length := int(data[i])
		if length == 0 || i+1+length > len(data) {
			break
		}
		adType := data[i+1]
		adData := data[i+2 : i+1+length]
		switch adType {
		case 0x08, 0x09: // shortened / complete local name
			name = string(adData)
		case 0x02, 0x03: // incomplete / complete list of 16-bit service UUIDs
			for j := 0; j+1 < len(adData); j += 2 {
				uuids[formatUUID16(adData[j], adData[j+1])] = struct{}{}
			}
		}
		i += 1 + length
	}
	return name, uuids
}

func formatUUID16(lo, hi byte) string {
	const hexDigits = "0123456789abcdef"
	v := uint16(hi)<<8 | uint16(lo)
	b := [4]byte{
		hexDigits[(v>>12)&0xF], hexDigits[(v>>8)&0xF],
		hexDigits[(v>>4)&0xF], hexDigits[v&0xF],
	}
	return string(b[:])
}

func leAddrType(wire uint8) AddressType {
	switch wire {
	case 0x00:
		return AddressLEPublic
	case 0x01:
		return AddressLERandom
	default:
		return AddressLERandomResolvable
	}
}
