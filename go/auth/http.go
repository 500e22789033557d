package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/patchbay/patchbay/go/store"
)

const sessionCookie = "session"

// Server exposes the auth endpoints: the nginx mail-auth hook, session
// login and logout, registration, and the per-user activity feed.
type Server struct {
	Gateway *Gateway
}

func (s *Server) Routes() *http.ServeMux {
	var mux = http.NewServeMux()
	mux.HandleFunc("/mail_auth", s.handleMailAuth)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/activity", s.handleActivity)
	return mux
}

// handleMailAuth implements the nginx mail auth_http protocol: the
// credentials arrive in Auth-* request headers and the verdict leaves in
// the Auth-Status response header.
func (s *Server) handleMailAuth(w http.ResponseWriter, r *http.Request) {
	var user = r.Header.Get("Auth-User")
	var pass = r.Header.Get("Auth-Pass")
	if user == "" || pass == "" || r.Header.Get("Auth-Protocol") == "" {
		http.Error(w, "missing auth headers", http.StatusBadRequest)
		return
	}

	if !s.Gateway.Validate(user, pass) {
		w.Header().Set("Auth-Status", "Invalid login or password")
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Auth-Status", "OK")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var username = r.FormValue("username")
	var password = r.FormValue("password")
	if !s.Gateway.Validate(username, password) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	var token, err = s.Gateway.Login(username)
	if err != nil {
		log.WithFields(log.Fields{"user": username, "err": err}).Error("login failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int(s.Gateway.TTL.Seconds()),
	})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if err = s.Gateway.Logout(cookie.Value); err != nil {
			log.WithField("err", err).Error("logout failed")
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name: sessionCookie, Value: "", Path: "/", HttpOnly: true, MaxAge: -1,
	})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var studentID = r.FormValue("student_id")
	if studentID == "" {
		http.Error(w, "student_id required", http.StatusBadRequest)
		return
	}

	var username, password, err = s.Gateway.Register(studentID)
	if errors.Is(err, ErrUnknownStudent) {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	} else if err != nil {
		log.WithField("err", err).Error("registration failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"username": username, "password": password})
}

// handleActivity returns the cookie user's submission log.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	var cookie, err = r.Cookie(sessionCookie)
	if err != nil {
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	}
	username, err := s.Gateway.SessionFromToken(cookie.Value)
	if err != nil {
		log.WithField("err", err).Error("session lookup failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if username == "" {
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	}

	subs, err := s.Gateway.Store.ListSubmissions("", username)
	if err != nil {
		log.WithFields(log.Fields{"user": username, "err": err}).Error("listing submissions")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if subs == nil {
		subs = []store.Submission{}
	}
	writeJSON(w, subs)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("err", err).Error("encoding response")
	}
}
