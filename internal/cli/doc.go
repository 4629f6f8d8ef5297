// Package cli is responsible for parsing command-line arguments, validating
// user input, and mapping outcomes to process exit codes. It translates CLI
// flags into the application's internal configuration.
package cli
