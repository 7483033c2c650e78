// Package identity provides the device identity sources the storage key is
// derived from. Every source implements crypto.IdentitySource.
//
// Sources:
//   - Static: a fixed value, for tests and scripted use
//   - File: the trimmed contents of a file
//   - MachineID: the systemd/dbus machine id, stable across reboots
//   - Keyring: a random id provisioned into the OS keyring
//   - Prompt: a value typed at the terminal without echo
//
// Cached wraps any source and memoizes its first successful value.
package identity
