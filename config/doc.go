// Package config loads application settings.
//
// Settings start from defaults, are overlaid by an optional YAML file and
// finally by COLLOQUY_* environment variables. Variables may be placed in a
// .env file, which LoadDotEnv reads into the process environment.
package config
