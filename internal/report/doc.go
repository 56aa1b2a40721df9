/*
Report fans execution reports out to sinks.

# Module
  - log: one line per report
  - channel: JSON on a messaging channel topic
  - kafka: JSON keyed by order ID
  - collector: in memory, for summaries

# Source
  - execution engine and multi-leg trades

# Produce
  - report payloads (order_id, state, fill_price, fill_qty, latency_us)
*/
package report
