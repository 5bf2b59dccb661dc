package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"

	"axocore/internal/domain"
)

var (
	port      int
	jwtSecret string
	logging   bool
)

const (
	defaultPort    = 8090
	readHeaderTO   = 5 * time.Second
	readTO         = 10 * time.Second
	writeTO        = 10 * time.Second
	idleTO         = 60 * time.Second
	maxRequestBody = 1 << 20
	maxDevices     = 32
)

type ctxKey string

const ctxKeyUser ctxKey = "user"
const ctxKeyReqID ctxKey = "reqid"

// state holds registered pre-key bundles and per-user device lists.
type state struct {
	mu      sync.RWMutex
	bundles map[domain.Username]domain.PreKeyBundle
	devices map[domain.Username][]domain.DeviceID
}

func newState() *state {
	return &state{
		bundles: make(map[domain.Username]domain.PreKeyBundle),
		devices: make(map[domain.Username][]domain.DeviceID),
	}
}

// withAuth verifies the bearer JWT and stashes the "sub" claim (username) in
// the request context; every /me/* route relies on this to scope writes to
// the caller's own account.
func withAuth(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeErr(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		raw := strings.TrimPrefix(auth, "Bearer ")
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return []byte(jwtSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			writeErr(w, http.StatusUnauthorized, "invalid token")
			return
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			writeErr(w, http.StatusUnauthorized, "token missing sub claim")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUser, domain.Username(sub))
		h(w, r.WithContext(ctx))
	}
}

func withRecover(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				writeErr(w, http.StatusInternalServerError, "internal error")
				if logging {
					slog.Error("panic", "err", rec)
				}
			}
		}()
		h(w, r)
	}
}

func withReqID(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = genReqID()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), ctxKeyReqID, id)
		h(w, r.WithContext(ctx))
	}
}

func withLogging(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !logging {
			h(w, r)
			return
		}
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w}
		h(lrw, r)
		slog.Info("access",
			"method", r.Method, "path", r.URL.Path, "remote", clientIP(r),
			"status", lrw.status, "bytes", lrw.bytes, "dur", time.Since(start),
			"reqid", requestIDFromCtx(r.Context()),
		)
	}
}

func chain(h http.HandlerFunc, mws ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(p []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(p)
	lrw.bytes += n
	return n, err
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("encode error: %v", err), http.StatusInternalServerError)
	}
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xr := r.Header.Get("X-Real-IP"); xr != "" {
		return xr
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyReqID).(string); ok {
		return v
	}
	return ""
}

func genReqID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

func userFromCtx(ctx context.Context) domain.Username {
	if v, ok := ctx.Value(ctxKeyUser).(domain.Username); ok {
		return v
	}
	return ""
}

// handlePublishPreKeys stores the caller's bundle (POST /me/prekeys).
func (s *state) handlePublishPreKeys(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var bundle domain.PreKeyBundle
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&bundle); err != nil {
		writeErr(w, http.StatusBadRequest, "bad request")
		return
	}
	bundle.Username = userFromCtx(r.Context())

	s.mu.Lock()
	s.bundles[bundle.Username] = bundle
	s.mu.Unlock()

	if logging {
		slog.Info("publish_prekeys", "user", bundle.Username.String(), "spk_id", bundle.SignedPreKeyID,
			"has_otk", bundle.OneTimePreKey != nil, "reqid", requestIDFromCtx(r.Context()))
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRegisterDevice appends a device to the caller's device list
// (POST /me/device).
func (s *state) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var payload struct {
		User   domain.Username `json:"user"`
		Device domain.DeviceID `json:"device"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil || payload.Device == "" {
		writeErr(w, http.StatusBadRequest, "bad request")
		return
	}
	user := userFromCtx(r.Context())

	s.mu.Lock()
	devices := s.devices[user]
	found := false
	for _, d := range devices {
		if d == payload.Device {
			found = true
			break
		}
	}
	if !found {
		if len(devices) >= maxDevices {
			s.mu.Unlock()
			writeErr(w, http.StatusRequestEntityTooLarge, "too many devices")
			return
		}
		devices = append(devices, payload.Device)
		s.devices[user] = devices
	}
	s.mu.Unlock()

	if logging {
		slog.Info("register_device", "user", user.String(), "device", payload.Device.String(),
			"device_count", len(devices), "reqid", requestIDFromCtx(r.Context()))
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoveDevice drops one of the caller's devices
// (DELETE /me/device/{device}).
func (s *state) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	device := domain.DeviceID(r.PathValue("device"))
	user := userFromCtx(r.Context())

	s.mu.Lock()
	devices := s.devices[user]
	out := devices[:0]
	for _, d := range devices {
		if d != device {
			out = append(out, d)
		}
	}
	s.devices[user] = out
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

// handleListDevices returns a user's registered devices
// (GET /user/{username}/devices).
func (s *state) handleListDevices(w http.ResponseWriter, r *http.Request) {
	user := domain.Username(r.PathValue("username"))
	s.mu.RLock()
	devices := s.devices[user]
	s.mu.RUnlock()

	entries := make([]domain.DeviceListEntry, 0, len(devices))
	for _, d := range devices {
		entries = append(entries, domain.DeviceListEntry{DeviceID: d})
	}
	writeJSON(w, entries)
}

// handleFetchBundle returns a user's latest published bundle
// (GET /user/{username}/prekey).
func (s *state) handleFetchBundle(w http.ResponseWriter, r *http.Request) {
	user := domain.Username(r.PathValue("username"))
	s.mu.RLock()
	bundle, ok := s.bundles[user]
	s.mu.RUnlock()
	if !ok {
		writeErr(w, http.StatusNotFound, "no bundle for user")
		return
	}
	writeJSON(w, bundle)
}

func main() {
	pflag.IntVarP(&port, "port", "p", defaultPort, "port to listen on")
	pflag.StringVar(&jwtSecret, "jwt-secret", os.Getenv("AXO_JWT_SECRET"), "shared secret validating bearer tokens")
	pflag.BoolVar(&logging, "log", false, "enable access logging")
	pflag.Parse()

	if jwtSecret == "" {
		log.Fatal("jwt secret required: pass --jwt-secret or set AXO_JWT_SECRET")
	}

	logger := slog.New(slog.NewTextHandler(log.Writer(), &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	s := newState()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /me/prekeys", chain(s.handlePublishPreKeys, withRecover, withReqID, withLogging, withAuth))
	mux.HandleFunc("POST /me/device", chain(s.handleRegisterDevice, withRecover, withReqID, withLogging, withAuth))
	mux.HandleFunc("DELETE /me/device/{device}", chain(s.handleRemoveDevice, withRecover, withReqID, withLogging, withAuth))
	mux.HandleFunc("GET /user/{username}/devices", chain(s.handleListDevices, withRecover, withReqID, withLogging, withAuth))
	mux.HandleFunc("GET /user/{username}/prekey", chain(s.handleFetchBundle, withRecover, withReqID, withLogging, withAuth))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTO,
		ReadTimeout:       readTO,
		WriteTimeout:      writeTO,
		IdleTimeout:       idleTO,
	}

	go func() {
		slog.Info("key server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("key server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}
