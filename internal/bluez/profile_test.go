package bluez

import (
	"errors"
	"os"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/darkhz/btkbd/internal/errorkinds"
)

const testRecord = `<?xml version="1.0" encoding="UTF-8" ?><record></record>`

func TestProfileOptionsMap(t *testing.T) {
	opts := DefaultProfileOptions("/bluez/yaptb/btkb_profile", testRecord)
	if err := opts.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	m := opts.Map()

	want := map[string]any{
		"Role":                  "server",
		"RequireAuthentication": false,
		"RequireAuthorization":  false,
		"AutoConnect":           true,
		"ServiceRecord":         testRecord,
	}
	if len(m) != len(want) {
		t.Fatalf("options = %v, want %d keys", m, len(want))
	}

	for key, value := range want {
		v, ok := m[key]
		if !ok {
			t.Fatalf("option %q is missing", key)
		}
		if v.Value() != value {
			t.Errorf("option %q = %v, want %v", key, v.Value(), value)
		}
	}
}

func TestProfileOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*ProfileOptions)
	}{
		{name: "Path", modify: func(o *ProfileOptions) { o.Path = "bluez/relative" }},
		{name: "UUID", modify: func(o *ProfileOptions) { o.UUID = "1124" }},
		{name: "Interface", modify: func(o *ProfileOptions) { o.InterfaceName = "" }},
		{name: "Record", modify: func(o *ProfileOptions) { o.ServiceRecord = "" }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			opts := DefaultProfileOptions("/bluez/yaptb/btkb_profile", testRecord)
			test.modify(&opts)

			if err := opts.Validate(); !errors.Is(err, errorkinds.ErrRegistrationRejected) {
				t.Fatalf("Validate error = %v, want ErrRegistrationRejected", err)
			}
		})
	}
}

func TestRegisterProfileTwice(t *testing.T) {
	client := NewClient(nil, ClientOptions{Adapter: "hci0"})
	client.profile = &profile{path: "/bluez/yaptb/btkb_profile"}

	err := client.RegisterProfile(DefaultProfileOptions("/bluez/yaptb/btkb_profile", testRecord), &fakeHandler{})
	if !errors.Is(err, errorkinds.ErrProfileRegistered) {
		t.Fatalf("RegisterProfile error = %v, want ErrProfileRegistered", err)
	}
}

func TestProfileCallbacks(t *testing.T) {
	handler := &fakeHandler{}
	p := &profile{
		path:    "/bluez/yaptb/btkb_profile",
		iface:   BluezProfileIface,
		handler: handler,
		log:     logrus.NewEntry(logrus.StandardLogger()),
	}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	fd, err := unix.Dup(int(w.Fd()))
	w.Close()
	if err != nil {
		t.Fatal(err)
	}

	if derr := p.NewConnection(hostPath, dbus.UnixFD(fd), map[string]dbus.Variant{
		"Version":  dbus.MakeVariant(uint16(0x0101)),
		"Features": dbus.MakeVariant(uint16(0x0002)),
	}); derr != nil {
		t.Fatalf("NewConnection: %v", derr)
	}

	if len(handler.connected) != 1 || handler.connected[0] != string(hostPath) {
		t.Fatalf("connected = %v", handler.connected)
	}
	if err := handler.fds[0].Close(); err != nil {
		t.Fatalf("closing the handed over descriptor: %v", err)
	}

	p.RequestDisconnection(hostPath)
	p.RequestDisconnection(hostPath)
	p.Cancel()
	p.Release()

	if len(handler.requested) != 2 {
		t.Fatalf("disconnection requests = %v, want 2", handler.requested)
	}
	if handler.canceled != 1 || handler.released != 1 {
		t.Fatalf("canceled = %d, released = %d, want 1 each", handler.canceled, handler.released)
	}
}
