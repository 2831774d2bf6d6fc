// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"net"
	"strconv"
	"strings"

	"github.com/qiaobaojoe/house-file-courier/pkg/logger"
)

// preferredInterfacePrefixes are tried before any other interface when looking
// for the address to print in the startup banner: wired and wireless NICs
// usually carry the LAN address, bridges and tunnels usually don't.
var preferredInterfacePrefixes = []string{"en", "eth", "wi-fi", "wl"}

// DetectedHostAddress returns a non-loopback IPv4 address of this host, preferring
// ethernet/wireless interfaces, or "localhost" when none is found.
func DetectedHostAddress() string {
	netInterfaces, err := net.Interfaces()
	if err != nil {
		logger.Info().Msgf("failed to detect net interfaces: %v", err)
		return "localhost"
	}

	var preferred []net.Interface
	for _, iface := range netInterfaces {
		name := strings.ToLower(iface.Name)
		for _, prefix := range preferredInterfacePrefixes {
			if strings.HasPrefix(name, prefix) {
				preferred = append(preferred, iface)
				break
			}
		}
	}

	if addr := selectIPv4(preferred); addr != "" {
		return addr
	}
	if addr := selectIPv4(netInterfaces); addr != "" {
		return addr
	}
	return "localhost"
}

func selectIPv4(netInterfaces []net.Interface) string {
	for _, netInterface := range netInterfaces {
		if (netInterface.Flags & net.FlagUp) == 0 {
			continue
		}
		addrs, err := netInterface.Addrs()
		if err != nil {
			logger.Debug().Err(err).Str("interface", netInterface.Name).Msg("get interface addresses")
			continue
		}

		for _, a := range addrs {
			if ipNet, ok := a.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
				return ipNet.IP.String()
			}
		}
	}
	return ""
}

func JoinHostPort(host string, port int) string {
	portStr := strconv.Itoa(port)
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		return host + ":" + portStr
	}
	return net.JoinHostPort(host, portStr)
}
