/*
OG is the order gateway, the last hop between the router and a venue.

# Module
  - venue link: SendOrder, CancelOrder, OnOrderAcknowledgement, VenueName
  - gateway: venue link over a messaging channel, json payloads
  - responder: venue side of the gateway, used by the venue simulator
  - sim venue: in-process venue with latency, reject rate and slippage

# Source
  - order copies from router

# Produce
  - venue acks to router
*/
package og
