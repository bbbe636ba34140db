// Package web provides the HTTP control API and status page for the
// thermostat daemon.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/thermod/internal/metrics"
	"github.com/sweeney/thermod/internal/schedule"
	"github.com/sweeney/thermod/internal/status"
)

// maxBodyBytes bounds POST bodies; a full timetable is well under this.
const maxBodyBytes = 1 << 20

// Server serves the control API and the status page over HTTP.
type Server struct {
	httpServer *http.Server
	store      *schedule.Store
	tracker    *status.Tracker
	path       string // timetable file; empty disables persistence
}

// New creates a Server operating on the given settings store and status
// tracker. Accepted updates are saved to path after each change.
func New(addr string, store *schedule.Store, tracker *status.Tracker, path string) *Server {
	s := &Server{store: store, tracker: tracker, path: path}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/settings", s.handlePostSettings).Methods(http.MethodPost)
	r.HandleFunc("/settings/days", s.handlePostDays).Methods(http.MethodPost)
	r.HandleFunc("/settings/{field}", s.handlePostField).Methods(http.MethodPost)

	r.HandleFunc("/heating", s.handleHeating).Methods(http.MethodGet)

	var h http.Handler = r
	h = handlers.RecoveryHandler()(h)
	h = handlers.LoggingHandler(logrus.StandardLogger().WriterLevel(logrus.DebugLevel), h)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: h,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleGetSettings returns the full settings document. The Last-Modified
// header carries the store's last update time so clients can poll cheaply.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.JSON()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Last-Modified", s.store.LastUpdate().UTC().Format(http.TimeFormat))
	if r.Method == http.MethodHead {
		return
	}
	w.Write(data)
}

// handlePostSettings replaces the whole settings document.
func (s *Server) handlePostSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.SetJSON(body); err != nil {
		writeError(w, err)
		return
	}
	s.commit(w, "all settings updated", nil)
}

// handlePostDays replaces one or more whole days of the timetable.
func (s *Server) handlePostDays(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, err)
		return
	}
	days, err := s.store.UpdateDays(body)
	if err != nil {
		writeError(w, err)
		return
	}
	s.commit(w, fmt.Sprintf("days %v updated", days), map[string]interface{}{"days": days})
}

// handlePostField updates a single scalar setting. The new value is read
// from the form parameter "value".
func (s *Server) handlePostField(w http.ResponseWriter, r *http.Request) {
	field := mux.Vars(r)["field"]
	value := r.FormValue("value")

	var err error
	switch field {
	case "status":
		err = s.store.SetStatus(value)
	case schedule.T0, schedule.TMin, schedule.TMax:
		var v float64
		v, err = strconv.ParseFloat(value, 64)
		if err != nil {
			err = &schedule.FieldValueError{Field: field, Value: value, Domain: "a number"}
		} else {
			err = s.store.SetTemperature(field, v)
		}
	case "differential":
		var v float64
		v, err = strconv.ParseFloat(value, 64)
		if err != nil {
			err = &schedule.FieldValueError{Field: field, Value: value, Domain: "a number"}
		} else {
			err = s.store.SetDifferential(v)
		}
	case "grace_time":
		err = s.store.SetGraceTime(value)
	default:
		http.NotFound(w, r)
		return
	}

	if err != nil {
		writeError(w, err)
		return
	}
	s.commit(w, fmt.Sprintf("%s updated", field), nil)
}

// handleHeating reports the live heating state alongside the measured and
// target temperatures.
func (s *Server) handleHeating(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()

	reply := map[string]interface{}{
		"timestamp":   time.Now().Unix(),
		"mode":        snap.Mode,
		"status":      0,
		"temperature": nil,
		"target":      nil,
	}
	if snap.HeatingOn {
		reply["status"] = 1
	}
	if snap.CurrentValid {
		reply["temperature"] = snap.Current
	}
	if target, err := s.store.Target(time.Now()); err == nil {
		reply["target"] = target
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Last-Modified", s.store.LastUpdate().UTC().Format(http.TimeFormat))
	json.NewEncoder(w).Encode(reply)
}

// commit persists the already-applied change. If saving fails the settings
// on disk are authoritative, so the in-memory state is reloaded from them
// before reporting the failure.
func (s *Server) commit(w http.ResponseWriter, message string, extra map[string]interface{}) {
	if s.path != "" {
		if err := s.store.Save(s.path); err != nil {
			logrus.WithError(err).Error("web: cannot save settings, reloading old ones")
			if lerr := s.store.Load(s.path); lerr != nil {
				logrus.WithError(lerr).Error("web: cannot reload old settings")
			}
			writeStatusError(w, http.StatusInternalServerError, "cannot save new settings to filesystem")
			return
		}
	}
	metrics.SettingsUpdates.Inc()

	reply := map[string]interface{}{"message": message}
	for k, v := range extra {
		reply[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reply)
}

// writeError maps a store error to an HTTP status: client mistakes are 400,
// everything else 500.
func writeError(w http.ResponseWriter, err error) {
	var verr *schedule.ValidationError
	var ferr *schedule.FieldValueError
	var serr *schedule.SyntaxError

	code := http.StatusInternalServerError
	if errors.As(err, &verr) || errors.As(err, &ferr) || errors.As(err, &serr) {
		code = http.StatusBadRequest
	}
	writeStatusError(w, code, err.Error())
}

func writeStatusError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
