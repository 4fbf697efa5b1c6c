/*
Package webhook delivers release events to the webhook registered for a
release.

Deliveries are JSON POSTs of Payload. When the webhook has a secret, the
body is signed with HMAC-SHA256 and sent as

	X-Wharf-Signature: sha256=<hex>

Receivers check it with Verify. Any non-2xx response is an error; callers
decide whether that matters.
*/
package webhook
