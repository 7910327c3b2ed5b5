// Package zsxq is the HTTP client for the topic feed API.
//
// FetchPage issues exactly one feed request and never retries; the backfill
// controller owns the retry and pacing policy. Transport failures and non-2xx
// statuses come back as *errors.FetchError, malformed payloads as
// *errors.ParseError. A 200 response without topics, including the API's
// succeeded=false throttle reply, is returned as an empty Page.
//
// ResolveFileURL and Open serve the asset fetcher: the first turns a file id
// into a short-lived download URL, the second streams bytes from any URL.
package zsxq
