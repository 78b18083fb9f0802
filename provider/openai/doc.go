// Package openai implements the provider contract on the OpenAI Responses
// API, speaking raw HTTP/JSON. Reasoning is requested in encrypted form so
// it can be replayed across turns without this process ever holding the
// plaintext.
package openai
