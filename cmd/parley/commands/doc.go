// Package commands defines the parley CLI.
//
// Commands
//
//   - join     Join the room and chat from stdin
//   - roster   Print the current participant snapshot
//   - logs     Fetch the relay's ciphertext audit log
//
// All subcommands talk to one relay, selected with the persistent --relay
// flag. Message content is sealed client-side; nothing a subcommand sends
// or fetches gives the relay decryption capability.
package commands
