// Package http exposes the service's public surface: the carrier's
// incoming-call webhook and the media stream websocket endpoint.
package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"ai-call-bridge-service/internal/app"
	"ai-call-bridge-service/internal/bridge"
	"ai-call-bridge-service/internal/observability/logging"
	"ai-call-bridge-service/internal/session"
	"ai-call-bridge-service/internal/telephony"
	"ai-call-bridge-service/internal/token"
)

// Services are the collaborators the HTTP layer hands calls to.
type Services struct {
	Codec       *token.Codec
	Registry    *session.Registry
	Directory   session.Directory
	SessionDeps session.Dependencies
	Bridge      *bridge.Handler

	// PublicHost is the externally reachable host callers stream to.
	PublicHost string
	// WebhookAuthToken enables carrier signature validation when set.
	WebhookAuthToken string
}

type server struct {
	services Services
	upgrader websocket.Upgrader
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application, services Services) http.Handler {
	s := &server{
		services: services,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The carrier connects server-to-server with no Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/voice/incoming", s.handleIncomingCall)
		r.Get("/media-stream", s.handleMediaStream)
	})

	return r
}

// handleIncomingCall answers the carrier's call webhook: it admits the
// call, resolves the answering business, and returns the instruction
// document that connects the call to the media stream endpoint.
func (s *server) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithComponent("http")

	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	if s.services.WebhookAuthToken != "" {
		signature := r.Header.Get("X-Twilio-Signature")
		if !telephony.ValidateWebhookSignature(s.services.WebhookAuthToken, signature, s.requestURL(r), r.PostForm) {
			logger.Warn().Str("remote", r.RemoteAddr).Msg("Webhook signature validation failed")
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
	}

	callSID := r.PostFormValue("CallSid")
	from := r.PostFormValue("From")
	to := r.PostFormValue("To")
	direction := r.PostFormValue("Direction")
	if callSID == "" || to == "" {
		http.Error(w, "missing call parameters", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	sess := session.New(callSID, from, to, direction, s.services.SessionDeps)

	if err := sess.LoadContext(ctx, s.services.Directory); err != nil {
		if errors.Is(err, session.ErrBusinessNotFound) {
			logger.Warn().Str("to", to).Msg("Call for unconfigured number rejected")
		} else {
			logging.WithCall(callSID, "").Error().Err(err).Msg("Business resolution failed")
		}
		s.writeReject(w)
		return
	}

	if err := sess.CreateRecord(ctx, map[string]string{
		"accountSid": r.PostFormValue("AccountSid"),
	}); err != nil {
		logging.WithCall(callSID, sess.BusinessID).Warn().Err(err).Msg("Failed to record call start")
	}

	s.services.Registry.Put(sess)

	twiml, err := telephony.ConnectStreamTwiML(
		fmt.Sprintf("wss://%s/v1/media-stream", s.services.PublicHost),
		telephony.StreamParams{
			CallSID:      callSID,
			Token:        s.services.Codec.Issue(callSID),
			From:         from,
			To:           to,
			BusinessID:   sess.BusinessID,
			BusinessName: sess.Profile.Name,
		})
	if err != nil {
		logging.WithCall(callSID, sess.BusinessID).Error().Err(err).Msg("Failed to render call instructions")
		s.services.Registry.Remove(callSID)
		s.writeReject(w)
		return
	}

	logging.WithCall(callSID, sess.BusinessID).Info().
		Str("businessName", sess.Profile.Name).
		Str("from", from).
		Msg("Incoming call admitted")

	s.writeTwiML(w, twiml)
}

// handleMediaStream upgrades the carrier's websocket and runs the
// bridge read loop until the stream closes.
func (s *server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.WithComponent("http").Warn().Err(err).Msg("Media stream upgrade failed")
		return
	}
	defer ws.Close()

	s.services.Bridge.ServeStream(ws)
}

// requestURL reconstructs the externally visible URL the carrier signed.
func (s *server) requestURL(r *http.Request) string {
	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS == nil {
		scheme = "http"
	}
	host := r.Host
	if s.services.PublicHost != "" {
		host = s.services.PublicHost
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func (s *server) writeReject(w http.ResponseWriter) {
	twiml, err := telephony.RejectTwiML()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.writeTwiML(w, twiml)
}

func (s *server) writeTwiML(w http.ResponseWriter, twiml string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(twiml))
}
