/*
Package filesystem provides filesystem checks with retry logic for stale NFS
file handles.

Source videos and the proxy cache frequently live on network mounts. The
cheap size check that decides whether a source needs a proxy, and the
existence check that makes proxy generation idempotent, both go through
StatWithRetry so a transient ESTALE does not trigger a needless re-encode.

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

Only ESTALE (errno 116 on Linux) is retried, with exponential backoff capped
at MaxBackoff. Every other error is returned immediately.
*/
package filesystem
