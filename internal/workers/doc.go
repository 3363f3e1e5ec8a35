// Package workers sizes the engine's concurrent frame decoding.
//
// Every thumbnail, strip sample and export spawns an ffmpeg process, so
// concurrency is bounded by the CPUs the process may actually use.
// GOMAXPROCS respects container CPU quotas where runtime.NumCPU does not,
// so all counts derive from it.
//
//	// bound for on-demand decodes (1 per CPU, capped at 8)
//	n := workers.ForDecode(8)
//
//	// bound for background preloading (half the decode bound)
//	n := workers.ForPreload(8)
//
// The FRAME_WORKERS environment variable overrides the computed value. The
// override is still capped by the limit argument.
package workers
