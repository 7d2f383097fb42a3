// Package config handles configuration loading for relay-gateway.
//
// # Configuration File
//
// Configuration is YAML with ${VAR_NAME} environment variable expansion:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
//	database:
//	  path: "/var/lib/relay/gateway.db"
//
//	auth:
//	  jwt_secret: "${RELAY_JWT_SECRET}"   # empty disables auth
//
//	notify:
//	  webhook_url: ""                     # empty logs escalations instead
//
//	agents:
//	  heartbeat_interval: "30s"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Duration values use Go's time.ParseDuration syntax.
//
// # Validation
//
// Load() requires server.http_addr and database.path; everything else has
// a default or an explicit disabled mode.
package config
