// Package config loads the agent configuration from an optional YAML file
// and the process environment, and validates what each agent role needs
// before it is allowed to start.
package config
