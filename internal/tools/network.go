package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"github.com/triage-ai/toolbox/internal/registry"
)

// Resolver is the subset of *net.Resolver used by the DNS tools.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

type ipArgs struct {
	IP string `json:"ip"`
}

type intToIPArgs struct {
	Number  json.Number `json:"number"`
	Version json.Number `json:"version"`
}

type urlArgs struct {
	URL string `json:"url"`
}

type buildURLArgs struct {
	Scheme   string `json:"scheme"`
	Hostname string      `json:"hostname"`
	Port     json.Number `json:"port"`
	Path     string      `json:"path"`
	Query    string      `json:"query"`
	Fragment string      `json:"fragment"`
}

func (a *buildURLArgs) Defaults() { a.Scheme = "https" }

type hostnameArgs struct {
	Hostname string `json:"hostname"`
}

// Network returns the network tool group. DNS lookups go through resolver,
// or net.DefaultResolver when it is nil.
func Network(resolver Resolver) []registry.Tool {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	ipParam := func(desc string) registry.Param {
		return registry.Param{Name: "ip", Type: "string", Description: desc, Required: true}
	}

	return []registry.Tool{
		{
			Name:        "validate_ip",
			Description: "Validate and classify an IPv4 or IPv6 address",
			Parameters:  registry.Params(ipParam("IP address to validate")),
			Handler:     registry.Typed(validateIP),
		},
		{
			Name:        "ip_to_int",
			Description: "Convert an IP address to its integer value",
			Parameters:  registry.Params(ipParam("IP address to convert")),
			Handler: registry.Typed(func(_ context.Context, a ipArgs) (registry.Result, error) {
				addr, err := parseIP(a.IP)
				if err != nil {
					return registry.Result{"error": "Invalid IP address"}, nil
				}
				return registry.Result{"integer": ipToInt(addr)}, nil
			}),
		},
		{
			Name:        "int_to_ip",
			Description: "Convert an integer to an IP address",
			Parameters: registry.Params(
				registry.Param{Name: "number", Type: "integer", Description: "Integer to convert", Required: true},
				registry.Param{Name: "version", Type: "integer", Description: "IP version, 4 or 6 (default: 4)", Enum: []any{4, 6}},
			),
			Handler: registry.Typed(func(_ context.Context, a intToIPArgs) (registry.Result, error) {
				n, err := parseInteger(a.Number)
				if err != nil {
					return registry.Result{"error": err.Error()}, nil
				}
				version, err := intArg(a.Version, 4)
				if err != nil {
					return registry.Result{"error": err.Error()}, nil
				}
				addr, err := intToIP(n, version)
				if err != nil {
					return registry.Result{"error": err.Error()}, nil
				}
				return registry.Result{"ip": addr.String()}, nil
			}),
		},
		{
			Name:        "parse_url",
			Description: "Split a URL into its components",
			Parameters: registry.Params(
				registry.Param{Name: "url", Type: "string", Description: "URL to parse", Required: true},
			),
			Handler: registry.Typed(func(_ context.Context, a urlArgs) (registry.Result, error) {
				u, err := parseURL(a.URL)
				if err != nil {
					return registry.Result{"error": err.Error()}, nil
				}
				return u.result(), nil
			}),
		},
		{
			Name:        "build_url",
			Description: "Build a URL from its components",
			Parameters: registry.Params(
				registry.Param{Name: "scheme", Type: "string", Description: "URL scheme, e.g. http or https (default: https)"},
				registry.Param{Name: "hostname", Type: "string", Description: "Host name or domain", Required: true},
				registry.Param{Name: "port", Type: "integer", Description: "Port number (optional)", Nullable: true},
				registry.Param{Name: "path", Type: "string", Description: "URL path (optional)"},
				registry.Param{Name: "query", Type: "string", Description: "Query string (optional)"},
				registry.Param{Name: "fragment", Type: "string", Description: "URL fragment (optional)"},
			),
			Handler: registry.Typed(func(_ context.Context, a buildURLArgs) (registry.Result, error) {
				netloc := a.Hostname
				if a.Port != "" {
					port, err := parseInteger(a.Port)
					if err != nil {
						return registry.Result{"error": err.Error()}, nil
					}
					if port.Sign() != 0 {
						netloc = a.Hostname + ":" + port.String()
					}
				}
				return registry.Result{"url": unsplitURL(a.Scheme, netloc, a.Path, a.Query, a.Fragment)}, nil
			}),
		},
		{
			Name:        "dns_lookup",
			Description: "Resolve a host name to an IPv4 address",
			Parameters: registry.Params(
				registry.Param{Name: "hostname", Type: "string", Description: "Host name to resolve", Required: true},
			),
			Handler: registry.Typed(func(ctx context.Context, a hostnameArgs) (registry.Result, error) {
				ip, err := lookupIPv4(ctx, resolver, a.Hostname)
				if err != nil {
					return registry.Result{"error": err.Error()}, nil
				}
				return registry.Result{"ip": ip, "hostname": a.Hostname}, nil
			}),
		},
		{
			Name:        "reverse_dns",
			Description: "Resolve an IP address to a host name",
			Parameters:  registry.Params(ipParam("IP address to look up")),
			Handler: registry.Typed(func(ctx context.Context, a ipArgs) (registry.Result, error) {
				host, err := lookupHost(ctx, resolver, a.IP)
				if err != nil {
					return registry.Result{"error": err.Error()}, nil
				}
				return registry.Result{"hostname": host, "ip": a.IP}, nil
			}),
		},
	}
}

// ---------------------------------------------------------------------------
// IP addresses
// ---------------------------------------------------------------------------

func parseIP(s string) (netip.Addr, error) {
	return netip.ParseAddr(s)
}

func validateIP(_ context.Context, a ipArgs) (registry.Result, error) {
	addr, err := parseIP(a.IP)
	if err != nil {
		return registry.Result{"valid": false, "error": "Invalid IP address"}, nil
	}
	version := 6
	if addr.Is4() {
		version = 4
	}
	return registry.Result{
		"valid":        true,
		"version":      version,
		"is_private":   isPrivate(addr),
		"is_loopback":  addr.IsLoopback(),
		"is_multicast": addr.IsMulticast(),
	}, nil
}

var (
	privateV4 = mustPrefixes(
		"0.0.0.0/8", "10.0.0.0/8", "127.0.0.0/8", "169.254.0.0/16",
		"172.16.0.0/12", "192.0.0.0/29", "192.0.0.170/31", "192.0.2.0/24",
		"192.168.0.0/16", "198.18.0.0/15", "198.51.100.0/24", "203.0.113.0/24",
		"240.0.0.0/4", "255.255.255.255/32",
	)
	privateV4Exceptions = mustPrefixes("192.0.0.9/32", "192.0.0.10/32")

	privateV6 = mustPrefixes(
		"::1/128", "::/128", "::ffff:0:0/96", "64:ff9b:1::/48", "100::/64",
		"2001::/23", "2001:db8::/32", "2001:10::/28", "fc00::/7", "fe80::/10",
	)
	privateV6Exceptions = mustPrefixes(
		"2001:1::1/128", "2001:1::2/128", "2001:3::/32", "2001:4:112::/48",
		"2001:20::/28", "2001:30::/28",
	)
)

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, len(cidrs))
	for i, c := range cidrs {
		out[i] = netip.MustParsePrefix(c)
	}
	return out
}

// isPrivate reports whether addr falls in a special-purpose range that is
// not globally reachable (IANA special-purpose registries). IPv4-mapped
// addresses are classified by their IPv4 form.
func isPrivate(addr netip.Addr) bool {
	addr = addr.WithZone("")
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	if addr.Is4() {
		return inAny(addr, privateV4) && !inAny(addr, privateV4Exceptions)
	}
	return inAny(addr, privateV6) && !inAny(addr, privateV6Exceptions)
}

func inAny(addr netip.Addr, prefixes []netip.Prefix) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func ipToInt(addr netip.Addr) *big.Int {
	if addr.Is4() {
		b := addr.As4()
		return new(big.Int).SetBytes(b[:])
	}
	b := addr.As16()
	return new(big.Int).SetBytes(b[:])
}

var (
	maxIPv4 = new(big.Int).Lsh(big.NewInt(1), 32)
	maxIPv6 = new(big.Int).Lsh(big.NewInt(1), 128)
)

func intToIP(n *big.Int, version int) (netip.Addr, error) {
	family, bits, limit := "IPv6", 128, maxIPv6
	if version == 4 {
		family, bits, limit = "IPv4", 32, maxIPv4
	}
	if n.Sign() < 0 {
		return netip.Addr{}, fmt.Errorf("%s (< 0) is not permitted as an %s address", n, family)
	}
	if n.Cmp(limit) >= 0 {
		return netip.Addr{}, fmt.Errorf("%s (>= 2**%d) is not permitted as an %s address", n, bits, family)
	}

	if version == 4 {
		var b [4]byte
		n.FillBytes(b[:])
		return netip.AddrFrom4(b), nil
	}
	var b [16]byte
	n.FillBytes(b[:])
	return netip.AddrFrom16(b), nil
}

// ---------------------------------------------------------------------------
// URLs
// ---------------------------------------------------------------------------

// Schemes whose path may carry ";params" and schemes that use a "//"
// network location, per RFC 1808 era URL parsing.
var (
	paramSchemes = map[string]bool{
		"": true, "ftp": true, "hdl": true, "prospero": true, "http": true,
		"imap": true, "https": true, "shttp": true, "rtsp": true, "rtsps": true,
		"rtspu": true, "sip": true, "sips": true, "mms": true, "sftp": true,
		"tel": true,
	}
	netlocSchemes = map[string]bool{
		"": true, "ftp": true, "http": true, "gopher": true, "nntp": true,
		"telnet": true, "imap": true, "wais": true, "file": true, "mms": true,
		"https": true, "shttp": true, "snews": true, "prospero": true,
		"rtsp": true, "rtsps": true, "rtspu": true, "rsync": true, "svn": true,
		"svn+ssh": true, "sftp": true, "nfs": true, "git": true,
		"git+ssh": true, "ws": true, "wss": true, "itms-services": true,
	}
)

type urlParts struct {
	Scheme, Netloc, Path, Params, Query, Fragment string
}

// parseURL splits raw into six components without interpreting or
// unescaping any of them.
func parseURL(raw string) (*urlParts, error) {
	raw = strings.TrimLeftFunc(raw, func(r rune) bool { return r <= ' ' })
	raw = strings.NewReplacer("\t", "", "\r", "", "\n", "").Replace(raw)

	u := &urlParts{}
	if i := strings.IndexByte(raw, ':'); i > 0 && isSchemeLetter(raw[0]) && isSchemeChars(raw[:i]) {
		u.Scheme, raw = strings.ToLower(raw[:i]), raw[i+1:]
	}

	if strings.HasPrefix(raw, "//") {
		end := len(raw)
		if i := strings.IndexAny(raw[2:], "/?#"); i >= 0 {
			end = i + 2
		}
		u.Netloc, raw = raw[2:end], raw[end:]
		open, closed := strings.Contains(u.Netloc, "["), strings.Contains(u.Netloc, "]")
		if open != closed {
			return nil, errors.New("Invalid IPv6 URL")
		}
		if open {
			if err := checkBracketedHost(u.Netloc); err != nil {
				return nil, err
			}
		}
	}

	raw, u.Fragment, _ = strings.Cut(raw, "#")
	raw, u.Query, _ = strings.Cut(raw, "?")

	if paramSchemes[u.Scheme] && strings.Contains(raw, ";") {
		from := strings.LastIndexByte(raw, '/')
		if from < 0 {
			from = 0
		}
		if i := strings.IndexByte(raw[from:], ';'); i >= 0 {
			raw, u.Params = raw[:from+i], raw[from+i+1:]
		}
	}
	u.Path = raw

	if _, err := u.port(); err != nil {
		return nil, err
	}
	return u, nil
}

func isSchemeLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isSchemeChars(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !isSchemeLetter(c) && !('0' <= c && c <= '9') && c != '+' && c != '-' && c != '.' {
			return false
		}
	}
	return true
}

func checkBracketedHost(netloc string) error {
	_, hostinfo := lastCut(netloc, "@")
	_, bracketed, _ := strings.Cut(hostinfo, "[")
	host, _, _ := strings.Cut(bracketed, "]")
	host, _, _ = strings.Cut(host, "%")
	if strings.HasPrefix(host, "v") || strings.HasPrefix(host, "V") {
		return nil
	}
	if addr, err := netip.ParseAddr(host); err != nil || !addr.Is6() {
		return errors.New("'" + host + "' does not appear to be an IPv4 or IPv6 address")
	}
	return nil
}

// lastCut splits s around the last sep; before is empty when sep is absent.
func lastCut(s, sep string) (before, after string) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):]
	}
	return "", s
}

func (u *urlParts) hostPort() (host, port string) {
	_, hostinfo := lastCut(u.Netloc, "@")
	if _, bracketed, ok := strings.Cut(hostinfo, "["); ok {
		h, rest, _ := strings.Cut(bracketed, "]")
		_, port, _ = strings.Cut(rest, ":")
		return h, port
	}
	host, port, _ = strings.Cut(hostinfo, ":")
	return host, port
}

// hostname is lowercased; nil when the netloc carries no host.
func (u *urlParts) hostname() any {
	host, _ := u.hostPort()
	if host == "" {
		return nil
	}
	if name, zone, ok := strings.Cut(host, "%"); ok {
		return strings.ToLower(name) + "%" + zone
	}
	return strings.ToLower(host)
}

// port is nil when absent and an error when present but not a valid port.
func (u *urlParts) port() (any, error) {
	_, p := u.hostPort()
	if p == "" {
		return nil, nil
	}
	for i := 0; i < len(p); i++ {
		if p[i] < '0' || p[i] > '9' {
			return nil, fmt.Errorf("Port could not be cast to integer value as '%s'", p)
		}
	}
	n, err := strconv.Atoi(p)
	if err != nil || n > 65535 {
		return nil, errors.New("Port out of range 0-65535")
	}
	return n, nil
}

func (u *urlParts) result() registry.Result {
	port, _ := u.port()
	return registry.Result{
		"scheme":   u.Scheme,
		"netloc":   u.Netloc,
		"hostname": u.hostname(),
		"port":     port,
		"path":     u.Path,
		"params":   u.Params,
		"query":    u.Query,
		"fragment": u.Fragment,
	}
}

// unsplitURL reassembles components. Schemes known to use a network
// location get "//" even when netloc is empty.
func unsplitURL(scheme, netloc, path, query, fragment string) string {
	url := path
	if netloc != "" || (scheme != "" && netlocSchemes[scheme] && !strings.HasPrefix(url, "//")) {
		if url != "" && !strings.HasPrefix(url, "/") {
			url = "/" + url
		}
		url = "//" + netloc + url
	}
	if scheme != "" {
		url = scheme + ":" + url
	}
	if query != "" {
		url += "?" + query
	}
	if fragment != "" {
		url += "#" + fragment
	}
	return url
}

// ---------------------------------------------------------------------------
// DNS
// ---------------------------------------------------------------------------

const (
	errHostNotFound   = "[Errno -2] Name or service not known"
	errTemporaryDNS   = "[Errno -3] Temporary failure in name resolution"
	errUnknownAddress = "[Errno 1] Unknown host"
)

// lookupIPv4 returns the first IPv4 address for host. IP literals are
// returned as is.
func lookupIPv4(ctx context.Context, r Resolver, host string) (string, error) {
	if addr, err := netip.ParseAddr(host); err == nil && addr.Is4() {
		return addr.String(), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("encoding with 'idna' codec failed: %v", err)
	}

	ctx, cancel := resolverContext(ctx)
	defer cancel()

	ips, err := r.LookupIP(ctx, "ip4", ascii)
	if err != nil {
		return "", dnsError(ctx, err, errHostNotFound)
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	return "", errors.New(errHostNotFound)
}

// lookupHost returns the primary name for an address.
func lookupHost(ctx context.Context, r Resolver, ip string) (string, error) {
	ctx, cancel := resolverContext(ctx)
	defer cancel()

	names, err := r.LookupAddr(ctx, ip)
	if err != nil {
		return "", dnsError(ctx, err, errUnknownAddress)
	}
	if len(names) == 0 {
		return "", errors.New(errUnknownAddress)
	}
	return strings.TrimSuffix(names[0], "."), nil
}

// resolverTimeout caps a single DNS query.
const resolverTimeout = 3 * time.Second

// resolverContext bounds a DNS query so it gives up well before the
// caller's deadline. The handler then still reports the timeout as a
// resolution failure instead of being cut off by the invocation deadline.
func resolverContext(ctx context.Context) (context.Context, context.CancelFunc) {
	limit := resolverTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if half := time.Until(deadline) / 2; half < limit {
			limit = half
		}
	}
	return context.WithTimeout(ctx, limit)
}

// dnsError maps resolver failures to stable messages. Timeouts, including
// the invocation deadline expiring, read as temporary failures.
func dnsError(ctx context.Context, err error, notFound string) error {
	if ctx.Err() != nil {
		return errors.New(errTemporaryDNS)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return errors.New(notFound)
		case dnsErr.IsTimeout, dnsErr.IsTemporary:
			return errors.New(errTemporaryDNS)
		}
	}
	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return errors.New(notFound)
	}
	return err
}
