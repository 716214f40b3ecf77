// Package log builds the slog loggers used by capsule.
//
// The SecureHandler wraps any slog.Handler and masks values that must not
// reach a terminal or a log file: answers typed at sensitive input prompts,
// private key material and proxy credentials. Sync runs usually happen from
// cron, so NewLogger can additionally tee output into a size-rotated file.
//
//	logger, closer := log.NewLogger(os.Stderr, log.Options{Verbose: true})
//	defer closer.Close()
//	slog.SetDefault(logger)
package log
