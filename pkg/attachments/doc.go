// Package attachments turns CLI file arguments into attachments for Stannp
// submissions, inferring MIME types and validating paths before any request
// is made. Files are opened through an Opener so callers control the
// lifetime of each handle.
package attachments
