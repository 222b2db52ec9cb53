// Package config handles loading and validating cloud4rpi daemon configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (C4R_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The device token and broker credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(config.Path())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Transport.Kind)
package config
