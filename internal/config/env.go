package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ApplyEnvOverrides applies the deployment environment variables the
// gateway has always honored on top of cfg:
//
//	PORT                 listener port
//	AUTH_URL             auth service base URL and the target of the "auth" route
//	<ROUTE>_URL          target of the named route, e.g. ASGARD_URL
//	REDIS_HOST/PORT      Redis address
//	REDIS_PASSWORD       Redis password
//	LOG_LEVEL            logging level
//
// Unset variables leave the configured value untouched.
func ApplyEnvOverrides(cfg *Config, lookup LookupFunc) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}

	if v, ok := lookup("AUTH_URL"); ok && v != "" {
		cfg.Identity.AuthURL = v
	}

	for i := range cfg.Routes {
		if cfg.Routes[i].Name == "" {
			continue
		}
		if v, ok := lookup(routeEnvName(cfg.Routes[i].Name)); ok && v != "" {
			cfg.Routes[i].Target = v
		}
	}

	host, hostSet := lookup("REDIS_HOST")
	port, portSet := lookup("REDIS_PORT")
	if (hostSet && host != "") || (portSet && port != "") {
		curHost, curPort, err := net.SplitHostPort(cfg.Redis.Address)
		if err != nil {
			curHost, curPort = "127.0.0.1", "6379"
		}
		if hostSet && host != "" {
			curHost = host
		}
		if portSet && port != "" {
			curPort = port
		}
		cfg.Redis.Address = net.JoinHostPort(curHost, curPort)
	}

	if v, ok := lookup("REDIS_PASSWORD"); ok && v != "" {
		cfg.Redis.Password = v
	}

	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		cfg.Observability.Logging.Level = v
	}

	return nil
}

// routeEnvName maps a route name to its override variable: "asgard" becomes
// ASGARD_URL, "user-api" becomes USER_API_URL.
func routeEnvName(name string) string {
	upper := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
	return upper + "_URL"
}
