package server

import (
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/openedx/edx-platform-sub027/internal/cookiestore"
	"github.com/openedx/edx-platform-sub027/internal/userstate"
)

const (
	// IdentityNamespace is the cookie namespace holding the anonymous
	// learner ID when no UserHeader is present.
	IdentityNamespace = "videostate"
	identityKey       = "user_id"
)

type saveResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleSaveUserState(w http.ResponseWriter, r *http.Request) {
	blockID := chi.URLParam(r, "blockID")
	userID, err := s.identify(w, r)
	if err != nil {
		s.log.Error("identify learner", "error", err)
		writeJSON(w, http.StatusInternalServerError, saveResponse{Error: "internal error"})
		return
	}

	values, err := s.readValues(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, saveResponse{Error: "invalid request body"})
		return
	}

	u, err := userstate.ParseUpdate(values)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, saveResponse{Error: err.Error()})
		return
	}
	if len(u.Ignored) > 0 {
		s.log.Debug("save_user_state: ignored keys", "block", blockID, "keys", u.Ignored)
	}
	if u.Empty() {
		writeJSON(w, http.StatusOK, saveResponse{Success: true})
		return
	}

	if _, err := s.cfg.Repo.Save(r.Context(), userID, blockID, u); err != nil {
		s.log.Error("save_user_state failed", "user", userID, "block", blockID, "error", err)
		writeJSON(w, http.StatusInternalServerError, saveResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, saveResponse{Success: true})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	blockID := chi.URLParam(r, "blockID")
	userID, err := s.identify(w, r)
	if err != nil {
		s.log.Error("identify learner", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	m, err := s.cfg.Repo.Metadata(r.Context(), userID, blockID, userstate.MetadataDefaults{
		SaveStateURL:       SaveStateURL(blockID),
		TranscriptLanguage: r.URL.Query().Get("lang"),
		AutoAdvance:        s.cfg.DefaultAutoAdvance,
	})
	if err != nil {
		s.log.Error("load state failed", "user", userID, "block", blockID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// identify returns the upstream user ID, or an anonymous ID kept in the
// learner's cookie namespace and minted on first contact. With a Sealer
// configured the stored ID is sealed and a value that fails to open is
// replaced.
func (s *Server) identify(w http.ResponseWriter, r *http.Request) (string, error) {
	if id := r.Header.Get(UserHeader); id != "" {
		return id, nil
	}
	store := cookiestore.Open(cookiestore.NewRequestJar(w, r), IdentityNamespace, cookiestore.Options{Hub: s.hub, Logger: s.log})
	defer store.Close()
	if v, ok := store.GetItem(identityKey); ok {
		if id, err := s.openIdentity(v.String()); err == nil && id != "" {
			return id, nil
		}
		s.log.Debug("discarding unreadable identity cookie")
	}
	id := uuid.NewString()
	stored := id
	if s.cfg.Sealer != nil {
		sealed, err := s.cfg.Sealer.Seal(id)
		if err != nil {
			return "", err
		}
		stored = sealed
	}
	if err := store.SetItem(identityKey, stored, false); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Server) openIdentity(stored string) (string, error) {
	if s.cfg.Sealer == nil {
		return stored, nil
	}
	return s.cfg.Sealer.Open(stored)
}

func (s *Server) readValues(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		if len(body) == 0 {
			return map[string]string{}, nil
		}
		return userstate.ValuesFromJSON(body)
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	values := make(map[string]string, len(r.PostForm))
	for k, vs := range r.PostForm {
		if len(vs) > 0 {
			values[k] = vs[0]
		}
	}
	return values, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
