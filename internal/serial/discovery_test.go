package serial

import (
	"errors"
	"testing"

	"github.com/kozaktomas/facegate/internal/config"
)

var testSignatures = config.PortSignatures{
	BluetoothPaths:         []string{"rfcomm"},
	BluetoothProducts:      []string{"HC-06", "BT04"},
	BluetoothManufacturers: []string{"Bluetooth"},
	USBPaths:               []string{"ttyACM", "ttyUSB"},
}

func newTestDiscovery(fixedExists bool, ports []PortInfo, listErr error) *Discovery {
	return &Discovery{
		FixedPort:  "/dev/rfcomm4",
		Signatures: testSignatures,
		List: func() ([]PortInfo, error) {
			return ports, listErr
		},
		Exists: func(path string) bool {
			return fixedExists && path == "/dev/rfcomm4"
		},
	}
}

func TestDiscovery_Find(t *testing.T) {
	tests := []struct {
		name        string
		fixedExists bool
		ports       []PortInfo
		listErr     error
		want        string
		wantErr     bool
	}{
		{
			name:        "fixed path wins",
			fixedExists: true,
			ports:       []PortInfo{{Path: "/dev/ttyACM0"}},
			want:        "/dev/rfcomm4",
		},
		{
			name:  "bluetooth path before usb",
			ports: []PortInfo{{Path: "/dev/ttyACM0"}, {Path: "/dev/rfcomm0"}},
			want:  "/dev/rfcomm0",
		},
		{
			name:  "bluetooth product case-insensitive",
			ports: []PortInfo{{Path: "/dev/ttyACM0"}, {Path: "/dev/ttyUSB3", Product: "hc-06 bridge"}},
			want:  "/dev/ttyUSB3",
		},
		{
			name:  "bluetooth manufacturer",
			ports: []PortInfo{{Path: "/dev/ttyUSB0"}, {Path: "/dev/ttyS4", Manufacturer: "Generic Bluetooth Co"}},
			want:  "/dev/ttyS4",
		},
		{
			name:  "first usb path when no bluetooth",
			ports: []PortInfo{{Path: "/dev/ttyS0"}, {Path: "/dev/ttyUSB1"}, {Path: "/dev/ttyACM0"}},
			want:  "/dev/ttyUSB1",
		},
		{
			name:    "nothing matches",
			ports:   []PortInfo{{Path: "/dev/ttyS0"}},
			wantErr: true,
		},
		{
			name:    "enumeration fails",
			listErr: errors.New("no sysfs"),
			wantErr: true,
		},
		{
			name:        "enumeration fails but fixed exists",
			fixedExists: true,
			listErr:     errors.New("no sysfs"),
			want:        "/dev/rfcomm4",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := newTestDiscovery(tc.fixedExists, tc.ports, tc.listErr).Find()
			if tc.wantErr {
				if !errors.Is(err, ErrNoPort) {
					t.Errorf("expected ErrNoPort, got %q, %v", got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Find() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDiscovery_Candidates(t *testing.T) {
	d := newTestDiscovery(true, []PortInfo{
		{Path: "/dev/ttyS0"},
		{Path: "/dev/rfcomm4"},
		{Path: "/dev/ttyACM0"},
		{Path: "/dev/ttyUSB0", Product: "BT04-A"},
	}, nil)

	got, err := d.Candidates()
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}

	want := []struct {
		path  string
		match Match
	}{
		{"/dev/rfcomm4", MatchFixed},
		{"/dev/ttyUSB0", MatchBluetooth},
		{"/dev/ttyACM0", MatchUSB},
		{"/dev/ttyS0", MatchNone},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %+v", len(want), got)
	}
	for i, w := range want {
		if got[i].Path != w.path || got[i].Match != w.match {
			t.Errorf("candidate %d = %s/%q, want %s/%q", i, got[i].Path, got[i].Match, w.path, w.match)
		}
	}
}
