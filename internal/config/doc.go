/*
Package config manages application configuration.

Settings are layered: compiled-in defaults, then an optional YAML file,
then TANGOFS_* environment variables, later layers overriding earlier
ones. Load applies all three and Validate checks the result before
anything is mounted.
*/
package config
