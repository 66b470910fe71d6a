/*
Package eventbridge provides a thin publish/subscribe bridge between application handlers and a host transport.
It keeps a per-instance channel registry, encodes outbound envelopes for an injected Poster, and dispatches
inbound envelopes the host hands to DeliverInbound.
*/
package eventbridge
