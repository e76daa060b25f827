// profiling.go implements optional profiling support for a Store using
// Go's standard net/http/pprof and runtime/trace packages, for on-demand
// capture during long-running maintenance operations such as sealing
// sweeps or bulk writes.
package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime/trace"
	"time"
)

// ProfilingConfig specifies profiling options for a Store.
//
// When provided to Open via WithProfiling, it starts an HTTP server with
// pprof endpoints for on-demand profiling.
type ProfilingConfig struct {
	// EnableProfiling starts an HTTP server with pprof endpoints.
	EnableProfiling bool

	// ProfileAddr specifies the address for the profiling HTTP server.
	// Defaults to ":6060" if empty. Use "localhost:6060" to restrict to
	// local access.
	ProfileAddr string

	// Trace enables execution tracing for the lifetime of the Store.
	// The trace is written to TraceOutputPath.
	Trace bool

	// TraceOutputPath specifies where to write the execution trace.
	// Defaults to "./trace.out" if empty and Trace is true.
	TraceOutputPath string
}

// WithProfiling returns a StoreOption that enables profiling with the
// given configuration.
func WithProfiling(config *ProfilingConfig) StoreOption {
	return func(s *Store) {
		if config == nil {
			return
		}
		if config.EnableProfiling && config.ProfileAddr == "" {
			config.ProfileAddr = ":6060"
		}
		if config.Trace && config.TraceOutputPath == "" {
			config.TraceOutputPath = "./trace.out"
		}
		s.profiling = config
	}
}

// startProfiling starts the HTTP profiling server and/or trace based on
// configuration. Returns an error if profiling setup fails; Open aborts
// in that case rather than silently running unprofiled.
func (s *Store) startProfiling() error {
	if s.profiling == nil {
		return nil
	}

	if s.profiling.EnableProfiling {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		s.profileServer = &http.Server{Addr: s.profiling.ProfileAddr, Handler: mux}

		go func() {
			if err := s.profileServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "chunkstore: profiling server error: %v\n", err)
			}
		}()

		time.Sleep(100 * time.Millisecond)
		fmt.Fprintf(os.Stderr, "chunkstore: profiling server started on %s\n", s.profiling.ProfileAddr)
	}

	if s.profiling.Trace {
		f, err := os.Create(s.profiling.TraceOutputPath)
		if err != nil {
			return fmt.Errorf("chunkstore: create trace file: %w", err)
		}
		s.traceFile = f
		if err := trace.Start(f); err != nil {
			f.Close()
			s.traceFile = nil
			return fmt.Errorf("chunkstore: start trace: %w", err)
		}
	}

	return nil
}

// stopProfiling stops the HTTP profiling server and/or trace. It is safe
// to call even if startProfiling was never invoked.
func (s *Store) stopProfiling() {
	if s.profiling == nil {
		return
	}

	if s.profileServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.profileServer.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "chunkstore: error shutting down profiling server: %v\n", err)
		}
		s.profileServer = nil
	}

	if s.traceFile != nil {
		trace.Stop()
		s.traceFile.Close()
		s.traceFile = nil
	}
}
