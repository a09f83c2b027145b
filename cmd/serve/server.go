package serve

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ValentinKolb/litepool/lib/common"
	"github.com/ValentinKolb/litepool/lib/pool"
	"github.com/ValentinKolb/litepool/lib/store/sqlstore"
	"github.com/goccy/go-json"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("http")

// maxValueSize limits the body of a PUT request
const maxValueSize = 64 << 20

// server exposes one pool and the key-value store on top of it over http
type server struct {
	conf  *common.PoolConfig
	pool  *pool.Pool
	store *sqlstore.Store
}

// NewHandler creates the http handler serving the store, the pool statistics and the metrics.
// If debug is set, every request is logged.
func NewHandler(conf *common.PoolConfig, p *pool.Pool, s *sqlstore.Store, debug bool) http.Handler {
	srv := &server{conf: conf, pool: p, store: s}
	mux := http.NewServeMux()

	handle := func(pattern string, h http.HandlerFunc) {
		if debug {
			h = loggerMiddleware(h)
		}
		mux.HandleFunc(pattern, h)
	}

	handle("GET /metrics", srv.handleMetrics)
	handle("GET /stats", srv.handleStats)
	handle("GET /info", srv.handleInfo)
	handle("POST /gc", srv.handleGC)

	handle("GET /kv/{key}", srv.handleGet)
	handle("HEAD /kv/{key}", srv.handleHas)
	handle("PUT /kv/{key}", srv.handleSet)
	handle("DELETE /kv/{key}", srv.handleDelete)
	handle("POST /kv/{key}/expire", srv.handleExpire)

	return mux
}

// --------------------------------------------------------------------------
// Pool endpoints
// --------------------------------------------------------------------------

func (s *server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	s.pool.WriteMetrics(w)
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Path   string             `json:"path"`
		Config *common.PoolConfig `json:"config"`
		Stats  pool.Stats         `json:"stats"`
	}{
		Path:   s.pool.Path(),
		Config: s.conf,
		Stats:  s.pool.Stats(),
	})
}

func (s *server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.GetDBInfo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *server) handleGC(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.GarbageCollect(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --------------------------------------------------------------------------
// Key-value endpoints
// --------------------------------------------------------------------------

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	value, ok, err := s.store.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		http.Error(w, "key not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(value)
}

func (s *server) handleHas(w http.ResponseWriter, r *http.Request) {
	ok, err := s.store.Has(r.Context(), r.PathValue("key"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleSet stores the request body. The optional query parameters expire and delete
// set the offsets (in writes), if-unset=true only writes keys that are not set.
func (s *server) handleSet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	query := r.URL.Query()

	expireIn, err := parseOffset(query.Get("expire"))
	if err != nil {
		http.Error(w, "invalid expire offset", http.StatusBadRequest)
		return
	}
	deleteIn, err := parseOffset(query.Get("delete"))
	if err != nil {
		http.Error(w, "invalid delete offset", http.StatusBadRequest)
		return
	}

	defer r.Body.Close()
	value, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxValueSize))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	switch {
	case query.Get("if-unset") == "true":
		err = s.store.SetEIfUnset(r.Context(), key, value, expireIn, deleteIn)
	case expireIn > 0 || deleteIn > 0:
		err = s.store.SetE(r.Context(), key, value, expireIn, deleteIn)
	default:
		err = s.store.Set(r.Context(), key, value)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("key")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleExpire(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Expire(r.Context(), r.PathValue("key")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func parseOffset(v string) (uint64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError maps store and pool errors to a status code
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pool.ErrPoolClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	log.Warningf("request failed: %v", err)
	http.Error(w, err.Error(), status)
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter captures the status code of a response
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware logs every request with its status code and duration
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		log.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	}
}
