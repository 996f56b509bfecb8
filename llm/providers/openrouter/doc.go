// Package openrouter implements the OpenRouter adapter used by the council.
//
// OpenRouter exposes many vendors' models (OpenAI, Google, Anthropic, xAI)
// behind one OpenAI-compatible API, so every council member and the
// chairman are reached through a single [Provider]. [QueryModel] is the
// one-shot helper the council stages and the connectivity check build on.
package openrouter
