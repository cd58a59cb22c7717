/*
Package log provides structured logging for the job-dispatch core using zerolog.

Init(cfg Config) configures a single global zerolog.Logger (JSON or
console output, level debug/info/warn/error). Callers derive child
loggers carrying structured fields instead of mutating global state:

	logger := log.WithComponent("worker").With().
		Str("task", job.Task).
		Str("job_id", job.Handle).
		Logger()

WithComponent, WithTaskName, WithJobID, and WithCruiseID are the common
cases (ground: cuemby-warren/pkg/log's WithComponent/WithNodeID/
WithServiceID/WithTaskID). A worker reformats its logger per job this
way instead of rewriting a shared log-prefix string.
*/
package log
