// Package blitpaths parses the remote endpoint grammar of spec §6:
// host[:port]:/module/[path], host[:port]://root-relative-path, and
// host[:port]: for discovery.
package blitpaths

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultControlPlanePort is used when an endpoint omits :port.
const DefaultControlPlanePort = 50051

// Endpoint is a parsed remote address.
type Endpoint struct {
	Host      string
	Port      int
	Module    string // "" for the root-relative form
	Path      string // module-relative, or root-relative when Module == ""
	Discovery bool   // true for the bare "host[:port]:" form
}

// Parse decodes a remote endpoint string. Backslashes anywhere in the path
// portion are rejected.
func Parse(raw string) (Endpoint, error) {
	host, port, rest, err := splitHostPortRest(raw)
	if err != nil {
		return Endpoint{}, err
	}

	if rest == "" {
		return Endpoint{Host: host, Port: port, Discovery: true}, nil
	}

	if strings.Contains(rest, `\`) {
		return Endpoint{}, fmt.Errorf("blitpaths: backslashes not allowed in endpoint path: %q", raw)
	}

	if strings.HasPrefix(rest, "//") {
		return Endpoint{Host: host, Port: port, Path: strings.TrimPrefix(rest, "//")}, nil
	}

	if strings.HasPrefix(rest, "/") {
		trimmed := strings.TrimPrefix(rest, "/")
		parts := strings.SplitN(trimmed, "/", 2)
		module := parts[0]
		path := ""
		if len(parts) == 2 {
			path = parts[1]
		}
		if module == "" {
			return Endpoint{}, fmt.Errorf("blitpaths: missing module name in endpoint: %q", raw)
		}
		return Endpoint{Host: host, Port: port, Module: module, Path: path}, nil
	}

	return Endpoint{}, fmt.Errorf("blitpaths: unrecognized endpoint form: %q", raw)
}

// splitHostPortRest separates "host[:port]:REST" into its three parts. The
// grammar's outer colon (before REST) is distinguished from an inner
// host:port colon by trying the two-colon form first.
func splitHostPortRest(raw string) (host string, port int, rest string, err error) {
	if h, p, r, ok := trySplitTwo(raw); ok {
		port, convErr := strconv.Atoi(p)
		if convErr == nil {
			return h, port, r, nil
		}
	}
	if h, r, ok := trySplitOne(raw); ok {
		return h, DefaultControlPlanePort, r, nil
	}
	return "", 0, "", fmt.Errorf("blitpaths: not a remote endpoint: %q", raw)
}

func trySplitTwo(raw string) (host, port, rest string, ok bool) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func trySplitOne(raw string) (host, rest string, ok bool) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Addr renders "host:port" suitable for grpc.Dial / net.Dial.
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// IsRemote reports whether raw parses as a remote endpoint (see Parse),
// versus a plain local filesystem path.
func IsRemote(raw string) bool {
	_, err := Parse(raw)
	return err == nil
}
