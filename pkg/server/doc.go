// Package server implements the executor's inbound HTTP endpoints.
//
// The coordinator calls POST {base}/beat, /idleBeat, /run, /kill and /log.
// Every response is a JSON envelope with HTTP status 200; code 200 inside the
// envelope signals success. When an access token is configured, requests
// without the matching XXL-JOB-ACCESS-TOKEN header are answered with a
// failure envelope before reaching any endpoint.
//
// Usage:
//
//	srv := server.New(cfg, sched, server.WithLogReader(store))
//	if err := srv.Listen(); err != nil {
//	    return err
//	}
//	go srv.Serve()
package server
