/*
Package httpserver implements the HTTP API of the confidential token launchpad.

It exposes the token registry aggregator, the balance disclosure coordinator
and the mutation lifecycle manager to browser clients and scripts.

# API Endpoints

	GET  /api/tokens                       aggregated token list
	GET  /api/tokens/{address}             single token
	POST /api/tokens                       create a confidential token
	POST /api/tokens/{address}/freemint    claim the freemint allowance
	POST /api/tokens/{address}/decrypt     disclose the server identity's balance
	GET  /api/mutations/{id}               mutation snapshot
	GET  /api/mutations/{id}/events        websocket stream of mutation transitions

The list and single token endpoints accept an optional holder query parameter
used to compute isCreator. Without it the server identity is used.

Mutation endpoints answer 202 once the transaction is pending. The mutation
can then be polled or followed over the websocket, which sends the current
snapshot first and closes after the terminal event.

# Error Responses

Errors are returned as {"error": "..."} with a status derived from the error:

	400  invalid input, rejected mutation
	401  no holder identity configured
	403  signature declined
	404  unknown token or mutation
	409  same mutation already in flight
	502  chain read, disclosure request or transaction failure
	503  registry or disclosure service unavailable

# Health Endpoints

	GET /livez     liveness
	GET /readyz    readiness, 503 while draining
	GET /drain     mark the server not ready
	GET /undrain   mark the server ready again

pprof is mounted under /debug when enabled. Prometheus metrics are served by a
separate listener, see package metrics.
*/
package httpserver
