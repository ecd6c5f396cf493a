// Package serial owns the link to the door actuator: port discovery, open and reconnect,
// newline framing and flushed writes.
package serial

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/kozaktomas/facegate/internal/config"
)

// ErrNoPort is returned when no candidate port is found.
var ErrNoPort = errors.New("no serial port found")

// PortInfo describes one serial port reported by the system.
type PortInfo struct {
	Path         string
	Product      string
	Manufacturer string
	USB          bool
	VID          string
	PID          string
}

// Match says why a port was selected.
type Match string

const (
	MatchFixed     Match = "fixed"
	MatchBluetooth Match = "bluetooth"
	MatchUSB       Match = "usb"
	MatchNone      Match = ""
)

// Candidate is a port together with the rule that matched it.
type Candidate struct {
	PortInfo
	Match Match
}

// Lister enumerates serial ports.
type Lister func() ([]PortInfo, error)

// EnumeratePorts lists ports with USB details where the platform provides them,
// falling back to bare names.
func EnumeratePorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		ports := make([]PortInfo, 0, len(details))
		for _, d := range details {
			ports = append(ports, PortInfo{
				Path:    d.Name,
				Product: d.Product,
				USB:     d.IsUSB,
				VID:     d.VID,
				PID:     d.PID,
			})
		}
		return ports, nil
	}

	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("listing serial ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(names))
	for _, n := range names {
		ports = append(ports, PortInfo{Path: n})
	}
	return ports, nil
}

// Discovery picks the actuator port: the fixed pre-bound path if present, then ports
// matching a Bluetooth serial signature, then generic USB ACM/serial ports.
type Discovery struct {
	FixedPort  string
	Signatures config.PortSignatures
	List       Lister
	Exists     func(path string) bool
}

// NewDiscovery creates a discovery using the system enumerator.
func NewDiscovery(cfg *config.SerialConfig) *Discovery {
	return &Discovery{
		FixedPort:  cfg.FixedPort,
		Signatures: cfg.Signatures,
		List:       EnumeratePorts,
		Exists:     pathExists,
	}
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Find returns the first matching port path.
func (d *Discovery) Find() (string, error) {
	candidates, err := d.Candidates()
	if err != nil {
		return "", err
	}
	for _, c := range candidates {
		if c.Match != MatchNone {
			return c.Path, nil
		}
	}
	return "", fmt.Errorf("%w: no fixed, bluetooth or usb serial port among %d ports", ErrNoPort, len(candidates))
}

// Candidates lists every known port in selection order; unmatched ports come last with MatchNone.
func (d *Discovery) Candidates() ([]Candidate, error) {
	var out []Candidate
	seen := make(map[string]bool)

	if d.FixedPort != "" && d.Exists != nil && d.Exists(d.FixedPort) {
		out = append(out, Candidate{PortInfo: PortInfo{Path: d.FixedPort}, Match: MatchFixed})
		seen[d.FixedPort] = true
	}

	var ports []PortInfo
	if d.List != nil {
		var err error
		ports, err = d.List()
		if err != nil {
			if len(out) > 0 {
				return out, nil
			}
			return nil, fmt.Errorf("%w: %w", ErrNoPort, err)
		}
	}

	var bluetooth, usb, other []Candidate
	for _, p := range ports {
		if seen[p.Path] {
			continue
		}
		seen[p.Path] = true
		switch {
		case d.isBluetooth(p):
			bluetooth = append(bluetooth, Candidate{PortInfo: p, Match: MatchBluetooth})
		case containsAny(p.Path, d.Signatures.USBPaths):
			usb = append(usb, Candidate{PortInfo: p, Match: MatchUSB})
		default:
			other = append(other, Candidate{PortInfo: p})
		}
	}

	out = append(out, bluetooth...)
	out = append(out, usb...)
	return append(out, other...), nil
}

func (d *Discovery) isBluetooth(p PortInfo) bool {
	return containsAny(p.Path, d.Signatures.BluetoothPaths) ||
		containsFold(p.Product, d.Signatures.BluetoothProducts) ||
		containsFold(p.Manufacturer, d.Signatures.BluetoothManufacturers)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func containsFold(s string, subs []string) bool {
	if s == "" {
		return false
	}
	s = strings.ToLower(s)
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
