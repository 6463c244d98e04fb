package tools

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/triage-ai/toolbox/internal/registry"
)

type fakeResolver struct {
	ips   map[string][]net.IP
	names map[string][]string
	delay time.Duration
}

func (f *fakeResolver) LookupIP(ctx context.Context, _ string, host string) ([]net.IP, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if ips, ok := f.ips[host]; ok {
		return ips, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func (f *fakeResolver) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if names, ok := f.names[addr]; ok {
		return names, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: addr, IsNotFound: true}
}

func (f *fakeResolver) wait(ctx context.Context) error {
	if f.delay == 0 {
		return nil
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return &net.DNSError{Err: ctx.Err().Error(), IsTimeout: true}
	}
}

func TestValidateIP(t *testing.T) {
	res := call(t, Network(nil), "validate_ip", registry.Arguments{"ip": "127.0.0.1"})
	want := registry.Result{"valid": true, "version": 4, "is_loopback": true, "is_private": true, "is_multicast": false}
	for k, v := range want {
		if res[k] != v {
			t.Errorf("%s: expected %v, got %v", k, v, res[k])
		}
	}

	res = call(t, Network(nil), "validate_ip", registry.Arguments{"ip": "999.1.1.1"})
	if res["valid"] != false || res["error"] != "Invalid IP address" {
		t.Errorf("unexpected result for invalid address: %v", res)
	}
}

func TestValidateIP_Classification(t *testing.T) {
	tests := []struct {
		ip        string
		version   int
		private   bool
		multicast bool
	}{
		{"10.1.2.3", 4, true, false},
		{"172.16.5.4", 4, true, false},
		{"192.168.0.1", 4, true, false},
		{"8.8.8.8", 4, false, false},
		{"100.64.0.1", 4, false, false},
		{"192.0.0.9", 4, false, false},
		{"224.0.0.1", 4, false, true},
		{"fc00::1", 6, true, false},
		{"fe80::1%eth0", 6, true, false},
		{"2001:db8::1", 6, true, false},
		{"2606:4700::1111", 6, false, false},
		{"ff02::1", 6, false, true},
		{"::ffff:10.0.0.1", 6, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			res := call(t, Network(nil), "validate_ip", registry.Arguments{"ip": tt.ip})
			if res["valid"] != true {
				t.Fatalf("expected valid, got %v", res)
			}
			if res["version"] != tt.version || res["is_private"] != tt.private || res["is_multicast"] != tt.multicast {
				t.Errorf("got %v", res)
			}
		})
	}

	for _, bad := range []string{"", "01.2.3.4", "1.2.3", "hello", "::g"} {
		res := call(t, Network(nil), "validate_ip", registry.Arguments{"ip": bad})
		if res["valid"] != false {
			t.Errorf("%q: expected invalid, got %v", bad, res)
		}
	}
}

func TestIPIntConversion(t *testing.T) {
	tests := []struct {
		ip      string
		integer string
		version string
	}{
		{"192.168.1.1", "3232235777", "4"},
		{"0.0.0.0", "0", "4"},
		{"255.255.255.255", "4294967295", "4"},
		{"::1", "1", "6"},
		{"2001:db8::1", "42540766411282592856903984951653826561", "6"},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			res := call(t, Network(nil), "ip_to_int", registry.Arguments{"ip": tt.ip})
			if got := wire(t, res["integer"]); got != tt.integer {
				t.Errorf("ip_to_int(%s) = %s, want %s", tt.ip, got, tt.integer)
			}
			back := call(t, Network(nil), "int_to_ip", registry.Arguments{"number": num(tt.integer), "version": num(tt.version)})
			if back["ip"] != tt.ip {
				t.Errorf("int_to_ip(%s) = %v, want %s", tt.integer, back, tt.ip)
			}
		})
	}

	res := call(t, Network(nil), "ip_to_int", registry.Arguments{"ip": "nope"})
	if res["error"] != "Invalid IP address" {
		t.Errorf("expected error, got %v", res)
	}
}

func TestIntToIPRange(t *testing.T) {
	tests := []struct {
		number  string
		version string
		want    string
	}{
		{"4294967296", "4", "4294967296 (>= 2**32) is not permitted as an IPv4 address"},
		{"-1", "4", "-1 (< 0) is not permitted as an IPv4 address"},
		{"340282366920938463463374607431768211456", "6", "340282366920938463463374607431768211456 (>= 2**128) is not permitted as an IPv6 address"},
	}
	for _, tt := range tests {
		res := call(t, Network(nil), "int_to_ip", registry.Arguments{"number": num(tt.number), "version": num(tt.version)})
		if res["error"] != tt.want {
			t.Errorf("int_to_ip(%s, v%s): expected %q, got %v", tt.number, tt.version, tt.want, res)
		}
	}

	res := call(t, Network(nil), "int_to_ip", registry.Arguments{"number": num("16909060")})
	if res["ip"] != "1.2.3.4" {
		t.Errorf("expected default version 4, got %v", res)
	}

	res = call(t, Network(nil), "int_to_ip", registry.Arguments{"number": num("1"), "version": num("6.0")})
	if res["ip"] != "::1" {
		t.Errorf("expected version 6.0 to read as 6, got %v", res)
	}
}

func TestParseURL(t *testing.T) {
	res := call(t, Network(nil), "parse_url", registry.Arguments{"url": "https://user:pw@Example.com:8080/path;p?q=1#frag"})
	want := `{"fragment":"frag","hostname":"example.com","netloc":"user:pw@Example.com:8080","params":"p","path":"/path","port":8080,"query":"q=1","scheme":"https"}`
	if got := wire(t, res); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	res = call(t, Network(nil), "parse_url", registry.Arguments{"url": "http://[::1]:80/"})
	if res["hostname"] != "::1" || res["port"] != 80 {
		t.Errorf("unexpected IPv6 result %v", res)
	}

	res = call(t, Network(nil), "parse_url", registry.Arguments{"url": "mailto:x@y"})
	if res["scheme"] != "mailto" || res["path"] != "x@y" || res["hostname"] != nil || res["port"] != nil {
		t.Errorf("unexpected mailto result %v", res)
	}
}

func TestParseURLErrors(t *testing.T) {
	tests := map[string]string{
		"http://[::1/":      "Invalid IPv6 URL",
		"http://host:abc/":  "Port could not be cast to integer value as 'abc'",
		"http://host:70000": "Port out of range 0-65535",
	}
	for in, want := range tests {
		res := call(t, Network(nil), "parse_url", registry.Arguments{"url": in})
		if res["error"] != want {
			t.Errorf("parse_url(%q): expected %q, got %v", in, want, res)
		}
	}
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name string
		args registry.Arguments
		want string
	}{
		{"host only", registry.Arguments{"hostname": "example.com"}, "https://example.com"},
		{"all parts", registry.Arguments{
			"hostname": "example.com", "port": num("8080"), "path": "api", "query": "a=1", "fragment": "top",
		}, "https://example.com:8080/api?a=1#top"},
		{"zero port omitted", registry.Arguments{"hostname": "example.com", "port": num("0"), "path": "/x"}, "https://example.com/x"},
		{"custom scheme", registry.Arguments{"scheme": "ftp", "hostname": "files.example.com", "path": "/pub"}, "ftp://files.example.com/pub"},
		{"null port omitted", registry.Arguments{"hostname": "example.com", "port": nil}, "https://example.com"},
		{"integral float port", registry.Arguments{"hostname": "example.com", "port": num("8080.0")}, "https://example.com:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := call(t, Network(nil), "build_url", tt.args)
			if res["url"] != tt.want {
				t.Errorf("expected %s, got %v", tt.want, res["url"])
			}
		})
	}
}

func TestDNSLookup(t *testing.T) {
	r := &fakeResolver{ips: map[string][]net.IP{
		"example.com":       {net.ParseIP("2606:2800::1"), net.ParseIP("93.184.216.34")},
		"xn--bcher-kva.com": {net.ParseIP("10.0.0.7")},
	}}

	res := call(t, Network(r), "dns_lookup", registry.Arguments{"hostname": "example.com"})
	if res["ip"] != "93.184.216.34" || res["hostname"] != "example.com" {
		t.Errorf("unexpected result %v", res)
	}

	res = call(t, Network(r), "dns_lookup", registry.Arguments{"hostname": "bücher.com"})
	if res["ip"] != "10.0.0.7" {
		t.Errorf("expected IDNA lookup, got %v", res)
	}

	res = call(t, Network(r), "dns_lookup", registry.Arguments{"hostname": "1.2.3.4"})
	if res["ip"] != "1.2.3.4" {
		t.Errorf("expected literal passthrough, got %v", res)
	}

	res = call(t, Network(r), "dns_lookup", registry.Arguments{"hostname": "missing.invalid"})
	if res["error"] != errHostNotFound {
		t.Errorf("expected not-found error, got %v", res)
	}
}

func TestDNSLookup_Timeout(t *testing.T) {
	r := &fakeResolver{delay: time.Second}
	tool, _ := registry.MustNew(Network(r)).Resolve("dns_lookup")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := tool.Handler(ctx, registry.Arguments{"hostname": "slow.example"})
	if err != nil {
		t.Fatalf("timeout must be a domain error, got fault %v", err)
	}
	if res["error"] != errTemporaryDNS {
		t.Errorf("expected temporary failure, got %v", res)
	}
}

func TestReverseDNS(t *testing.T) {
	r := &fakeResolver{names: map[string][]string{"8.8.8.8": {"dns.google."}}}

	res := call(t, Network(r), "reverse_dns", registry.Arguments{"ip": "8.8.8.8"})
	if res["hostname"] != "dns.google" || res["ip"] != "8.8.8.8" {
		t.Errorf("unexpected result %v", res)
	}

	res = call(t, Network(r), "reverse_dns", registry.Arguments{"ip": "192.0.2.1"})
	if res["error"] != errUnknownAddress {
		t.Errorf("expected unknown host error, got %v", res)
	}
}
