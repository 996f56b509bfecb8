// Package api holds the request and response types of the LLM Council HTTP API.
//
// # API Overview
//
//   - GET    /api/conversations                         list conversation summaries
//   - POST   /api/conversations                         create a conversation
//   - DELETE /api/conversations                         delete every conversation
//   - GET    /api/conversations/{id}                    fetch one conversation
//   - POST   /api/conversations/{id}/message            run the council, JSON reply
//   - POST   /api/conversations/{id}/message/stream     run the council, SSE events
//   - GET    /api/conversations/{id}/message/ws         run the council over WebSocket
//   - POST   /api/users                                 submit the visitor profile
//   - GET    /health, /healthz, /ready, /readyz, /version
//
// Successful responses carry the domain object itself. Errors use the envelope
//
//	{"success": false, "error": {"code": "NOT_FOUND", "message": "..."}}
//
// # Authentication
//
// When server.api_keys is set every non-health endpoint requires
//
//	X-API-Key: your-api-key
//
// and when server.jwt.secret is set an HS256 bearer token.
//
// # Base URL
//
//	http://localhost:8001
package api
