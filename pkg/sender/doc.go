// Package sender provides the channel implementations plugged into the
// dispatcher: an in-process in-app feed, Postmark email, HMAC-signed
// webhooks, and a file-writing development sender that can stand in for any
// channel.
//
// Every sender classifies its result as success, transient failure, or
// permanent failure so the dispatcher knows whether retrying can help.
// Address resolution is injected through AddressFunc, keeping recipient
// directories out of the senders themselves.
package sender
