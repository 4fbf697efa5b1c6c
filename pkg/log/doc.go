/*
Package log provides structured logging for wharf using zerolog.

The package wraps a single global zerolog.Logger. Init configures the level and
the output format (JSON for servers, console for the CLI); child loggers add
the fields every rollout log line should carry.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("rollout")
	logger.Info().Str("release_id", id).Msg("rollout started")

# Context Loggers

  - WithComponent: component name (rollout, storage, kube, webhook, api)
  - WithReleaseID: release being rolled out
  - WithCluster: target cluster slug

Progress messages streamed to users through a rollout's progress callback are
not log lines; they are free text. Every phase transition is also logged here
with structured fields so operators can correlate both views.
*/
package log
