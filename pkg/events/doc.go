/*
Package events is an in-process pub/sub broker for rollout notifications.

	Orchestrator --Publish--> eventCh (100) --run--> subscriber chans (50 each)
	                                                   |
	                                                   +--> /api/events websocket

Event types:

	rollout.phase      the rollout entered a new phase
	rollout.progress   a free-text progress message
	rollout.succeeded  the release is active
	rollout.failed     the failure pipeline ran

Publish assigns a uuid and timestamp when missing and never blocks a
rollout. A full queue drops the event; a full subscriber buffer skips that
subscriber. Unsubscribe closes the subscriber channel and is safe to call
twice.
*/
package events
