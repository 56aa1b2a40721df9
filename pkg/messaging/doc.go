/*
Messaging keeps named pub/sub connections alive for the execution core.

# Module
  - registry: named publishers and subscribers, per-endpoint health, reconnect monitor
  - channel: publish plus a single in-order receive loop
  - transports: in-process broker, unix socket hub, websocket hub, redis pub/sub

# Source
  - orders and cancels from the order gateway
  - acknowledgements and fills from venues

# Produce
  - raw topic/payload messages, encoding is up to the caller

# Sharded
  - endpoint name
*/
package messaging
