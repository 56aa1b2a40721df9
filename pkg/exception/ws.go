package exception

import "errors"

// WS errors
var (
	ErrWebSocketUnexpectedFrame = errors.New("websocket: unexpected message type")
)
