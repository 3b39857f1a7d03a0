package netutil

import (
	"context"
	"errors"
	"net"
	"testing"
)

func TestLikelyRelayed(t *testing.T) {
	tests := []struct {
		name   string
		ifaces []Interface
		want   bool
	}{
		{
			name:   "plain lan",
			ifaces: []Interface{{Name: "eth0", Up: true, Addrs: []net.IP{net.ParseIP("192.168.1.20")}}},
			want:   false,
		},
		{
			name:   "wireguard",
			ifaces: []Interface{{Name: "wg0", Up: true}},
			want:   true,
		},
		{
			name:   "cgnat address",
			ifaces: []Interface{{Name: "en0", Up: true, Addrs: []net.IP{net.ParseIP("100.72.3.4")}}},
			want:   true,
		},
		{
			name:   "down tunnel ignored",
			ifaces: []Interface{{Name: "tun0", Up: false}},
			want:   false,
		},
		{
			name:   "loopback ignored",
			ifaces: []Interface{{Name: "lo", Up: true, Loop: true, Addrs: []net.IP{net.ParseIP("100.64.0.1")}}},
			want:   false,
		},
	}
	for _, tt := range tests {
		if got := LikelyRelayed(tt.ifaces); got != tt.want {
			t.Fatalf("%s: LikelyRelayed=%v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestResolver_LiteralIP(t *testing.T) {
	r := NewResolver()
	r.lookup = func(context.Context, string, string) ([]string, error) {
		t.Fatalf("lookup should not run for literal IPs")
		return nil, nil
	}
	got, err := r.Lookup(context.Background(), "127.0.0.1")
	if err != nil || got != "127.0.0.1" {
		t.Fatalf("Lookup=%q, %v", got, err)
	}
}

func TestResolver_FallsBackToPublicServers(t *testing.T) {
	r := NewResolver()
	r.Servers = []string{"192.0.2.1", "[2001:db8::1]"}
	r.lookup = func(_ context.Context, host, server string) ([]string, error) {
		switch server {
		case "":
			return nil, errors.New("local resolver broken")
		case "192.0.2.1":
			return []string{"2001:db8::5", "203.0.113.7"}, nil
		default:
			return nil, errors.New("unreachable")
		}
	}
	got, err := r.Lookup(context.Background(), "relay.example")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != "203.0.113.7" {
		t.Fatalf("Lookup=%q, want IPv4 answer", got)
	}
}

func TestResolver_AllServersFail(t *testing.T) {
	r := NewResolver()
	r.Servers = []string{"192.0.2.1", "192.0.2.2"}
	r.lookup = func(context.Context, string, string) ([]string, error) {
		return nil, errors.New("nope")
	}
	if _, err := r.Lookup(context.Background(), "relay.example"); err == nil {
		t.Fatalf("Lookup succeeded, want error")
	}
}
