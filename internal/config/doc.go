// Package config provides the gateway configuration model and its loading.
//
// Configuration is read from YAML with ${VAR:-default} substitution,
// decoded over DefaultConfig, adjusted by the deployment environment
// variables (PORT, AUTH_URL, <ROUTE>_URL, REDIS_HOST, REDIS_PORT), and
// validated:
//
//	cfg, err := config.LoadConfig("gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := config.ApplyEnvOverrides(cfg, os.LookupEnv); err != nil {
//	    log.Fatal(err)
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// A Watcher reloads the file on change. Only the log level is applied
// from a reload.
package config
