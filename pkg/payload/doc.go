// Package payload reads the recipient and parameter JSON files handed to the
// CLI and flattens them into the form fields the Stannp API expects.
package payload
