// Package anthropic implements the provider contract on the Anthropic
// Messages API, speaking raw HTTP/JSON. A leading system message moves into
// the request's top-level system field; the API does not accept system
// messages anywhere else.
package anthropic
