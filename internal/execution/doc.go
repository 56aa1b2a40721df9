/*
Execution drives orders and multi-leg trades to a terminal state.

# Module
  - engine: order queue, one worker, risk check, routing, exactly-once report
  - multi-leg: Init, Leg1Sent, Leg2Sent, Leg3Sent, then Complete or Error
  - leg sender: legs routed as limit orders

# Source
  - orders from producers through ExecuteTrade
  - trade legs from strategy through SetLegs

# Produce
  - execution reports to the reporter

Multi-leg execution never compensates. A failed leg leaves the earlier legs
sent; callers unwind from LegReports.
*/
package execution
