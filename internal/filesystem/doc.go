/*
Package filesystem provides filesystem writes that survive transient NFS
failures, used by the local storage backend.

Only ESTALE (stale file handle, errno 116) triggers a retry; any other
error fails immediately. Backoff is exponential between InitialBackoff and
MaxBackoff:

	err := filesystem.WriteFileAtomic("/srv/media/units/u1/p1.jpg", data, 0o644,
	    filesystem.DefaultRetryConfig())

Defaults are 3 retries starting at 50ms and capped at 500ms. Writes go to a
temporary file in the target directory and are renamed into place, so a
crashed upload never leaves a truncated object at its final key.
*/
package filesystem
