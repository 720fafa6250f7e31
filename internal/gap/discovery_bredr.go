package gap

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dantte-lp/gogap/internal/hcicodec"
)

// DiscoverySession is an RAII token for BR/EDR inquiry scanning: the
// controller runs Inquiry for as long as at least one session is open
// across all callers. Destroy releases the caller's share.
type DiscoverySession struct {
	mgr      *BREDRDiscoveryManager
	released atomic.Bool
}

// Destroy releases this session's hold on Inquiry. Idempotent.
func (s *DiscoverySession) Destroy() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	s.mgr.releaseDiscovery()
}

// DiscoverableSession is an RAII token for BR/EDR inquiry-scan
// discoverability, symmetric with DiscoverySession.
type DiscoverableSession struct {
	mgr      *BREDRDiscoveryManager
	released atomic.Bool
}

// Destroy releases this session's hold on inquiry scan. Idempotent.
func (s *DiscoverableSession) Destroy() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	s.mgr.releaseDiscoverable()
}

// InquiryResultCallback reports one discovered peer (or an updated RSSI
// / EIR observation for a peer already reported this inquiry).
type InquiryResultCallback func(peer *Peer)

// BREDRDiscoveryManager is the BR/EDR Discovery Manager (§4.3): it
// arbitrates Inquiry and Inquiry Scan across concurrently held sessions,
// coalescing overlapping start/stop requests into a single pending HCI
// transaction, and caches the Local Name written into EIR responses.
//
// Grounded on the sibling project's UnsolicitedPolicy session counter
// (unsolicited.go's atomic count gating a single shared resource) and
// its Manager's pending-operation coalescing around session creation.
type BREDRDiscoveryManager struct {
	mu sync.Mutex

	discoveryCount    int
	discoverableCount int

	inquiryPending   bool
	inquiryEnabled   bool
	scanPending      bool
	inquiryScanOn    bool

	localName string

	inquiryLength uint8

	transport Transport
	cache     PeerCache
	logger    *slog.Logger

	resultCBs []InquiryResultCallback
}

// DiscoveryOption configures a BREDRDiscoveryManager at construction time.
type DiscoveryOption func(*BREDRDiscoveryManager)

// WithInquiryLength overrides the controller's Inquiry duration field
// (1.28s units, 0x01-0x30) issued by every enableInquiry call.
func WithInquiryLength(length uint8) DiscoveryOption {
	return func(m *BREDRDiscoveryManager) { m.inquiryLength = length }
}

// NewBREDRDiscoveryManager creates a Discovery Manager driven by
// transport, publishing discovered peers through cache.
func NewBREDRDiscoveryManager(transport Transport, cache PeerCache, logger *slog.Logger, opts ...DiscoveryOption) *BREDRDiscoveryManager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &BREDRDiscoveryManager{transport: transport, cache: cache, logger: logger, inquiryLength: defaultInquiryLength}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartDiscovery opens a DiscoverySession, issuing Inquiry if this is the
// first concurrently held session.
func (m *BREDRDiscoveryManager) StartDiscovery(cb InquiryResultCallback) *DiscoverySession {
	m.mu.Lock()
	m.discoveryCount++
	first := m.discoveryCount == 1
	if cb != nil {
		m.resultCBs = append(m.resultCBs, cb)
	}
	m.mu.Unlock()

	if first {
		m.enableInquiry()
	}
	return &DiscoverySession{mgr: m}
}

func (m *BREDRDiscoveryManager) releaseDiscovery() {
	m.mu.Lock()
	m.discoveryCount--
	last := m.discoveryCount == 0
	m.mu.Unlock()

	if last {
		m.disableInquiry()
	}
}

// StartDiscoverable opens a DiscoverableSession, enabling Inquiry Scan if
// this is the first concurrently held session.
func (m *BREDRDiscoveryManager) StartDiscoverable() *DiscoverableSession {
	m.mu.Lock()
	m.discoverableCount++
	first := m.discoverableCount == 1
	m.mu.Unlock()

	if first {
		m.setInquiryScan(true)
	}
	return &DiscoverableSession{mgr: m}
}

func (m *BREDRDiscoveryManager) releaseDiscoverable() {
	m.mu.Lock()
	m.discoverableCount--
	last := m.discoverableCount == 0
	m.mu.Unlock()

	if last {
		m.setInquiryScan(false)
	}
}

// defaultInquiryLength is the controller's inquiry duration field
// (1.28s units); 8 => ~10.24s. handleInquiryComplete re-issues Inquiry
// after each Inquiry Complete while sessions remain open.
const defaultInquiryLength = 8

func (m *BREDRDiscoveryManager) enableInquiry() {
	m.mu.Lock()
	if m.inquiryEnabled || m.inquiryPending {
		m.mu.Unlock()
		return
	}
	m.inquiryPending = true
	m.mu.Unlock()

	lap := [3]byte{0x33, 0x8B, 0x9E} // General/Unlimited Inquiry Access Code
	_ = m.transport.Send(hcicodec.Inquiry(lap, m.inquiryLength, 0x00))
}

func (m *BREDRDiscoveryManager) disableInquiry() {
	m.mu.Lock()
	wantEnabled := m.discoveryCount > 0
	m.mu.Unlock()
	if wantEnabled {
		return // a session reopened before we got here; coalesced away
	}
	_ = m.transport.Send(hcicodec.InquiryCancel())
}

func (m *BREDRDiscoveryManager) setInquiryScan(enable bool) {
	m.mu.Lock()
	m.scanPending = true
	m.mu.Unlock()

	mask := uint8(0x02) // page scan bit 1 is always set; only inquiry scan bit 0 follows enable
	if enable {
		mask |= 0x01
	}
	_ = m.transport.Send(hcicodec.WriteScanEnable(mask))
}

// UpdateLocalName sets the cached local name returned by LocalName. No
// HCI command is issued, so the controller's name and EIR data are not
// rewritten, and the call always returns nil (§4.3).
func (m *BREDRDiscoveryManager) UpdateLocalName(name string) error {
	// The wire codec has no "Write Local Name" or "Write Extended
	// Inquiry Response" encoder, so only the cache is updated.
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localName = name
	return nil
}

// LocalName returns the cached local name.
func (m *BREDRDiscoveryManager) LocalName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localName
}

// HandleEvent processes Inquiry-related HCI events.
func (m *BREDRDiscoveryManager) HandleEvent(ev Event) {
	switch ev.Code {
	case hcicodec.EvInquiryResult:
		m.handleInquiryResult(ev)
	case hcicodec.EvInquiryResultWithRSSI:
		m.handleInquiryResultRSSI(ev)
	case hcicodec.EvExtendedInquiryResult:
		m.handleExtendedInquiryResult(ev)
	case hcicodec.EvInquiryComplete:
		m.handleInquiryComplete(ev)
	case hcicodec.EvCommandComplete:
		m.handleCommandComplete(ev)
	}
}

func (m *BREDRDiscoveryManager) handleCommandComplete(ev Event) {
	cc, err := hcicodec.DecodeCommandComplete(ev.Params)
	if err != nil {
		return
	}
	switch cc.OpCode {
	case hcicodec.OpInquiry:
		m.mu.Lock()
		m.inquiryPending = false
		m.inquiryEnabled = true
		m.mu.Unlock()
	case hcicodec.OpInquiryCancel:
		m.mu.Lock()
		m.inquiryEnabled = false
		m.mu.Unlock()
	case hcicodec.OpWriteScanEnable:
		m.mu.Lock()
		m.scanPending = false
		m.inquiryScanOn = m.discoverableCount > 0
		m.mu.Unlock()
	}
}

func (m *BREDRDiscoveryManager) handleInquiryComplete(_ Event) {
	m.mu.Lock()
	m.inquiryEnabled = false
	m.inquiryPending = false
	wantMore := m.discoveryCount > 0
	m.mu.Unlock()
	if wantMore {
		m.enableInquiry()
	}
}

func (m *BREDRDiscoveryManager) handleInquiryResult(ev Event) {
	items, err := hcicodec.DecodeInquiryResult(ev.Params)
	if err != nil {
		return
	}
	for _, it := range items {
		m.publishPeer(wireToAddr(it.BDAddr, AddressBREDRPublic), nil)
	}
}

func (m *BREDRDiscoveryManager) handleInquiryResultRSSI(ev Event) {
	items, err := hcicodec.DecodeInquiryResultWithRSSI(ev.Params)
	if err != nil {
		return
	}
	for _, it := range items {
		rssi := it.RSSI
		m.publishPeer(wireToAddr(it.BDAddr, AddressBREDRPublic), &rssi)
	}
}

func (m *BREDRDiscoveryManager) handleExtendedInquiryResult(ev Event) {
	eir, err := hcicodec.DecodeExtendedInquiryResult(ev.Params)
	if err != nil {
		return
	}
	addr := wireToAddr(eir.BDAddr, AddressBREDRPublic)
	rssi := eir.RSSI
	m.publishPeer(addr, &rssi)
}

func (m *BREDRDiscoveryManager) publishPeer(addr DeviceAddress, rssi *int8) {
	peer, ok := m.cache.FindByAddress(addr)
	if !ok {
		peer = m.cache.NewPeer(addr, true)
	}
	_ = rssi // RSSI is surfaced via Peer.Capability in a fuller build; tracked for future EIR parsing work

	m.mu.Lock()
	cbs := append([]InquiryResultCallback(nil), m.resultCBs...)
	m.mu.Unlock()
	for _, cb := range cbs {
		cb(peer)
	}
}
