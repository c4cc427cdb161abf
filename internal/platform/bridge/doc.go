// Package bridge implements publishing.Publisher against a platform bridge:
// an HTTP service that knows how to post to each social network. The
// bridge receives the content and the target account and answers with the
// platform's post identifier.
//
// A DryRunPublisher is provided for local runs without a bridge.
package bridge
