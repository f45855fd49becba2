package rpc

import "expvar"

var (
	metricTxSubmitted  = expvar.NewInt("rpc_tx_submitted_total")
	metricTxRejected   = expvar.NewInt("rpc_tx_rejected_total")
	metricLedgerClosed = expvar.NewInt("rpc_ledger_closed_total")
	metricLedgerAccept = expvar.NewInt("rpc_ledger_accepted_total")
	metricBadRequest   = expvar.NewInt("rpc_bad_request_total")
)
