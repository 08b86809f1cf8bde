// Package config loads the muse-gateway configuration.
//
// Configuration comes from a YAML file (or TOML when the path ends in .toml).
// Values of the form ${VAR} are expanded from the environment before parsing,
// and keys absent from the file keep the values from Default.
//
// Two environment variables override the routing section after the file is
// read: PRIMARY_GENERATION_ENABLED and SECONDARY_GENERATION_ENABLED. They
// accept anything strconv.ParseBool does; other values fail the load.
//
// Example:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  grpc_addr: "0.0.0.0:50051"
//	database:
//	  path: "${HOME}/.local/share/muse/gateway.db"
//	auth:
//	  jwt_secret: "${MUSE_JWT_SECRET}"
//	routing:
//	  primary_enabled: true
//	  secondary_enabled: false
//	  max_iterations: 10
//	workers:
//	  enabled: true
//	  schedule: "*/5 * * * *"
//	backend:
//	  base_url: "http://127.0.0.1:9090"
//	  timeout: "60s"
package config
