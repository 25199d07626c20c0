// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the trivia handlers. These provide
// more specific reasons for closure than standard codes.
const (
	BadSubprotocolError = 3000 // Client connected with an unsupported subprotocol.
	KickedByHostError   = 3001 // Host removed this player from the room.
)
