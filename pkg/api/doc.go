/*
Package api implements the wharf HTTP API: probes, metrics, release queries,
rollout triggers and a websocket stream of rollout events.

# Architecture

	┌──────────────── CLIENT (CLI / dashboard) ────────────────┐
	│  HTTP + JSON                    WebSocket                 │
	└───────────┬──────────────────────────┬────────────────────┘
	            │                          │
	┌───────────▼──────── chi router ──────▼────────────────────┐
	│  RequestID · Recoverer · request metrics · CORS            │
	│                                                            │
	│  /health /ready /live /metrics                             │
	│  GET  /api/releases[?app=&env=]                            │
	│  GET  /api/releases/{id}                                   │
	│  POST /api/releases/{id}/rollout[?wait=true]               │
	│  GET  /api/events[?release=<id>]   (websocket)             │
	└───────────┬──────────────────────────▲────────────────────┘
	            │ per app/env lock         │ events.Broker
	┌───────────▼──────────────────────────┴────────────────────┐
	│                rollout.Orchestrator                        │
	└────────────────────────────────────────────────────────────┘

# Rollout Triggers

A rollout trigger takes a lock keyed by "<app>/<env>". While it is held,
other triggers for the same key answer 409 Conflict; other environments are
unaffected. Without ?wait the rollout runs in the background under the
server's lifetime context and the request answers 202. With ?wait=true the
request blocks and answers:

	200  rollout succeeded (Result with the active release)
	422  rollout failed (Result.Error carries the message)
	500  finalize error
	404  unknown release

# Event Stream

/api/events upgrades to a websocket and writes each broker event as JSON.
Browser origins must be localhost or listed in allowedOrigins; the same list
drives CORS.

# Readiness

/ready probes storage on every call and reports it with the broker and the
number of running rollouts. /health and /live come from pkg/metrics.
*/
package api
