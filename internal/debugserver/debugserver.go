// Package debugserver exposes read-only JSON views of the simulator's
// live state over HTTP, adapted from the teacher's Modulo/HTTPServer
// handler-registry pattern (utils/modulo.go, utils/http_server.go)
// onto gorilla/mux. It never mutates the mmu or page table — the
// engine's synchronous, single-threaded contract (spec §5) is
// unaffected by an operator inspecting it from another terminal.
package debugserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/PokkeFe/os-memsim/internal/alloc"
	"github.com/PokkeFe/os-memsim/internal/repl"
)

// Server is a read-only HTTP front end over a running Repl.
type Server struct {
	repl   *repl.Repl
	log    *slog.Logger
	router *mux.Router
	http   *http.Server
}

// New builds a Server for the given Repl, listening on addr once
// Start is called.
func New(r *repl.Repl, addr string, log *slog.Logger) *Server {
	s := &Server{repl: r, log: log, router: mux.NewRouter()}
	s.router.HandleFunc("/mmu", s.handleMmu).Methods(http.MethodGet)
	s.router.HandleFunc("/page", s.handlePage).Methods(http.MethodGet)
	s.router.HandleFunc("/processes/{pid}/{name}", s.handleVariable).Methods(http.MethodGet)
	s.http = &http.Server{Addr: addr, Handler: s.router}
	return s
}

// Start runs the HTTP server in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("debug server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("debug server stopped", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down; suitable for registration
// with telemetry.RegisterShutdown.
func (s *Server) Stop() {
	_ = s.http.Close()
}

type mmuRow struct {
	PID            uint32 `json:"pid"`
	Name           string `json:"name"`
	VirtualAddress uint32 `json:"virtual_address"`
	Size           uint32 `json:"size"`
}

func (s *Server) handleMmu(w http.ResponseWriter, r *http.Request) {
	s.repl.Orc.RLock()
	entries := s.repl.Orc.Mmu.Entries()
	s.repl.Orc.RUnlock()

	rows := make([]mmuRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, mmuRow{PID: e.PID, Name: e.Variable.Name, VirtualAddress: e.Variable.VirtualAddress, Size: e.Variable.Size})
	}
	writeJSON(w, rows)
}

type pageRow struct {
	PID   uint32 `json:"pid"`
	Page  uint32 `json:"page"`
	Frame uint32 `json:"frame"`
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	s.repl.Orc.RLock()
	entries := s.repl.Orc.Pages.Entries()
	s.repl.Orc.RUnlock()

	rows := make([]pageRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, pageRow{PID: e.PID, Page: e.Page, Frame: e.Frame})
	}
	writeJSON(w, rows)
}

func (s *Server) handleVariable(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pid, err := strconv.ParseUint(vars["pid"], 10, 32)
	if err != nil {
		http.Error(w, "invalid pid", http.StatusBadRequest)
		return
	}

	s.repl.Orc.RLock()
	values, err := s.repl.Elements(uint32(pid), vars["name"])
	s.repl.Orc.RUnlock()
	if err != nil {
		switch {
		case errors.Is(err, alloc.ErrProcessNotFound), errors.Is(err, alloc.ErrVariableNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, map[string]any{"values": values})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
