// Package gmailapi wraps the Gmail REST API behind the Mailbox interface.
// Only message metadata is fetched; bodies never leave Google's side.
// googleapi error codes pass through unwrapped so the failure classifier can
// map 429/5xx to network failures and 401/403 to authentication failures.
package gmailapi
