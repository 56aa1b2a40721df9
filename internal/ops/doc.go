/*
Ops loads runtime configuration.

# Source
  - YAML or JSON file, HFT_ environment overrides, defaults
  - venues table in PostgreSQL when postgres is configured

# Produce
  - engine, router, registry and risk settings
*/
package ops
