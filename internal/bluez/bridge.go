package bluez

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"

	"github.com/dantte-lp/gogap/internal/gap"
)

const (
	bluezBusName      = "org.bluez"
	device1Iface      = "org.bluez.Device1"
	adapter1Iface     = "org.bluez.Adapter1"
	propertiesChanged = "org.freedesktop.DBus.Properties.PropertiesChanged"
)

// Bridge mirrors Peer Cache mutations onto org.bluez.Device1-shaped
// object paths on the system bus, and exposes the adapter's Powered and
// Discoverable properties. It implements gap.CacheObserver.
//
// Grounded on the connmgr-style BlueZ object-path convention
// ("/org/bluez/hci0/dev_XX_XX_XX_XX_XX_XX") used across the D-Bus/BlueZ
// reference material in the retrieved pack, adapted here to export
// objects (via github.com/godbus/dbus/v5/prop) rather than merely reading them.
type Bridge struct {
	conn        *dbus.Conn
	adapterPath dbus.ObjectPath
	logger      *slog.Logger

	mu           sync.Mutex
	devices      map[gap.PeerId]*prop.Properties
	adapterProps *prop.Properties
}

// NewBridge connects to the system bus and exports the adapter object at
// adapterObjectPath (e.g. "/org/bluez/hci0"). If adapterObjectPath is
// empty the bridge is disabled and every method is a no-op; daemon
// wiring can construct one unconditionally and only Close it on
// shutdown.
func NewBridge(adapterObjectPath string, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if adapterObjectPath == "" {
		return &Bridge{logger: logger, devices: make(map[gap.PeerId]*prop.Properties)}, nil
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: connect system bus: %w", err)
	}

	adapterPath := dbus.ObjectPath(adapterObjectPath)
	adapterProps, err := prop.Export(conn, adapterPath, prop.Map{
		adapter1Iface: {
			"Powered":      {Value: false, Writable: true, Emit: prop.EmitTrue, Callback: nil},
			"Discoverable": {Value: false, Writable: true, Emit: prop.EmitTrue, Callback: nil},
		},
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bluez: export adapter properties: %w", err)
	}

	return &Bridge{
		conn:         conn,
		adapterPath:  adapterPath,
		logger:       logger.With(slog.String("component", "bluez")),
		devices:      make(map[gap.PeerId]*prop.Properties),
		adapterProps: adapterProps,
	}, nil
}

// OnPeerUpdated implements gap.CacheObserver: exports or refreshes the
// Device1 object for p.
func (b *Bridge) OnPeerUpdated(p *gap.Peer) {
	if b.conn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	path := b.devicePath(p.Addresses[0])
	dp, ok := b.devices[p.Id]
	if !ok {
		exported, err := prop.Export(b.conn, path, prop.Map{
			device1Iface: {
				"Address":   {Value: p.Addresses[0].String(), Writable: false, Emit: prop.EmitTrue},
				"Name":      {Value: p.Capability.Name, Writable: false, Emit: prop.EmitTrue},
				"Alias":     {Value: p.Capability.Name, Writable: true, Emit: prop.EmitTrue},
				"Paired":    {Value: p.Bonded, Writable: false, Emit: prop.EmitTrue},
				"Connected": {Value: p.ConnState == gap.ConnectionStateConnected, Writable: false, Emit: prop.EmitTrue},
				"Trusted":   {Value: p.Bonded, Writable: true, Emit: prop.EmitTrue},
			},
		})
		if err != nil {
			b.logger.Warn("export device object failed", slog.String("path", string(path)), slog.String("error", err.Error()))
			return
		}
		b.devices[p.Id] = exported
		dp = exported
	}

	_ = dp.SetMust(device1Iface, "Name", p.Capability.Name)
	_ = dp.SetMust(device1Iface, "Connected", p.ConnState == gap.ConnectionStateConnected)
}

// OnPeerBonded implements gap.CacheObserver: flips Paired/Trusted once a
// link key is established.
func (b *Bridge) OnPeerBonded(p *gap.Peer) {
	if b.conn == nil {
		return
	}
	b.mu.Lock()
	dp, ok := b.devices[p.Id]
	b.mu.Unlock()
	if !ok {
		// Surface the bond even if no prior OnPeerUpdated call exported
		// the device object (e.g. a bond restored from persisted
		// storage at startup).
		b.OnPeerUpdated(p)
		b.mu.Lock()
		dp, ok = b.devices[p.Id]
		b.mu.Unlock()
		if !ok {
			return
		}
	}
	_ = dp.SetMust(device1Iface, "Paired", true)
	_ = dp.SetMust(device1Iface, "Trusted", true)
}

// SetConnectable implements the core's SetConnectable backend by driving
// the adapter's Discoverable property, an alternative to the core's own
// HCI Write Scan Enable path.
func (b *Bridge) SetConnectable(_ context.Context, enable bool) error {
	if b.adapterProps == nil {
		return nil
	}
	return b.adapterProps.Set(adapter1Iface, "Discoverable", dbus.MakeVariant(enable))
}

// Close releases the D-Bus connection.
func (b *Bridge) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

// devicePath derives the canonical BlueZ object path for addr under this
// bridge's adapter, e.g. "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func (b *Bridge) devicePath(addr gap.DeviceAddress) dbus.ObjectPath {
	hex := strings.ReplaceAll(addr.String(), ":", "_")
	if i := strings.IndexByte(hex, '/'); i >= 0 {
		hex = hex[:i]
	}
	return dbus.ObjectPath(fmt.Sprintf("%s/dev_%s", b.adapterPath, hex))
}
