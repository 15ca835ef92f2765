package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/ayemaqu/pedrisk/internal/events"
	"github.com/ayemaqu/pedrisk/internal/format"
)

func main() {
	addr := flag.String("addr", ":8099", "listen address for the decision receiver")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /decisions", handleDecision)
	mux.HandleFunc("POST /", handleDecision)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("decision receiver listening on %s (POST JSON to /decisions)...", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("receiver error: %v", err)
	}
}

func handleDecision(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	_ = r.Body.Close()
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	var ev events.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		log.Printf("received non-decision payload: path=%s content-type=%s len=%d\n%s",
			r.URL.Path, r.Header.Get("Content-Type"), len(body), string(body))
		http.Error(w, "invalid decision event", http.StatusBadRequest)
		return
	}

	log.Printf("decision request_id=%s variant=%s version=%s rule=%s label=%s class=%s p=%s total_ms=%.2f",
		ev.RequestID, ev.Variant, ev.PipelineVersion, ev.Outcome.Rule, ev.Outcome.Label,
		ev.Outcome.Class, format.Percent(ev.Outcome.Probability), ev.TimingMs.Total)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(w, `{"status":"ok"}`)
}
