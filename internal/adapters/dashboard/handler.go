// Package dashboard serves the interactive filter dashboard over HTTP: the
// page with its three controls and two plots, a JSON API over sessions, and
// live-set exports.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"tapeview/internal/core"
	"tapeview/internal/render"
	"tapeview/pkg/domain"
)

// Sessions opens and looks up dashboard sessions.
type Sessions interface {
	OpenSession(ctx context.Context) (*core.Session, error)
	Session(id string) (*core.Session, bool)
	CloseSession(id string) bool
}

// PlotSource serves the most recent plot images of a session. The
// render.Plotter attached as session consumer implements it.
type PlotSource interface {
	PNG(plot render.Plot) ([]byte, uint64, error)
}

// Handler provides HTTP access to dashboard sessions and exports.
type Handler struct {
	Sessions Sessions
	Exports  ExportScheduler
	Logger   *zap.Logger
}

// NewHandler constructs a dashboard handler over sessions.
func NewHandler(sessions Sessions) *Handler {
	return &Handler{Sessions: sessions, Logger: zap.NewNop()}
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Sessions == nil {
		writeError(w, http.StatusInternalServerError, "session service not configured")
		return
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")

	switch {
	case path == "":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleOpen(w, r)
	case segments[0] == "sessions" && len(segments) >= 2:
		h.handleSessionPage(w, r, segments[1], segments[2:])
	case len(segments) >= 4 && segments[0] == "api" && segments[1] == "v1" && segments[2] == "sessions":
		h.handleSessionAPI(w, r, segments[3], segments[4:])
	case len(segments) >= 4 && segments[0] == "api" && segments[1] == "v1" && segments[2] == "exports":
		h.handleExport(w, r, segments[3], segments[4:])
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	session, err := h.Sessions.OpenSession(r.Context())
	if err != nil {
		h.logger().Error("open session failed", zap.Error(err))
		renderFailure(w, statusFor(err), err)
		return
	}
	http.Redirect(w, r, "/sessions/"+session.ID(), http.StatusSeeOther)
}

func (h *Handler) handleSessionPage(w http.ResponseWriter, r *http.Request, id string, rest []string) {
	session, ok := h.Sessions.Session(id)
	if !ok {
		renderFailure(w, http.StatusNotFound, fmt.Errorf("session %s not found", id))
		return
	}
	switch {
	case len(rest) == 0:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		renderPage(w, http.StatusOK, session, "")
	case len(rest) == 1 && rest[0] == "controls":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleControls(w, r, session)
	case len(rest) == 2 && rest[0] == "plots":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handlePlot(w, session, strings.TrimSuffix(rest[1], ".png"))
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleControls(w http.ResponseWriter, r *http.Request, session *core.Session) {
	isJSON := isJSONRequest(r)
	var (
		update core.ControlUpdate
		err    error
	)
	if isJSON {
		update, err = decodeControlsJSON(r.Body)
	} else {
		update, err = decodeControlsForm(r, session.Controls())
	}
	if err == nil {
		_, err = session.Apply(update)
	}
	if err != nil {
		status := statusFor(err)
		h.logger().Debug("controls rejected", zap.String("session", session.ID()), zap.Error(err))
		if isJSON {
			writeError(w, status, err.Error())
		} else {
			renderPage(w, status, session, err.Error())
		}
		return
	}
	if isJSON {
		writeJSON(w, http.StatusOK, newSessionView(session))
		return
	}
	http.Redirect(w, r, "/sessions/"+session.ID(), http.StatusSeeOther)
}

func (h *Handler) handlePlot(w http.ResponseWriter, session *core.Session, name string) {
	plot, err := render.ParsePlot(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	source, ok := session.Consumer().(PlotSource)
	if !ok {
		writeError(w, http.StatusNotFound, "plots not available for session")
		return
	}
	img, generation, err := source.PNG(plot)
	if err != nil {
		h.logger().Error("plot unavailable", zap.String("session", session.ID()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Live-Generation", strconv.FormatUint(generation, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

func (h *Handler) handleSessionAPI(w http.ResponseWriter, r *http.Request, id string, rest []string) {
	// Stored artifacts stay listable after the session is closed or evicted.
	if len(rest) == 1 && rest[0] == "exports" && r.Method == http.MethodGet {
		h.handleExportList(w, r, id)
		return
	}
	session, ok := h.Sessions.Session(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, newSessionView(session))
	case len(rest) == 0 && r.Method == http.MethodDelete:
		h.Sessions.CloseSession(id)
		w.WriteHeader(http.StatusNoContent)
	case len(rest) == 1 && rest[0] == "controls" && r.Method == http.MethodPost:
		update, err := decodeControlsJSON(r.Body)
		if err == nil {
			_, err = session.Apply(update)
		}
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, newSessionView(session))
	case len(rest) == 1 && rest[0] == "exports" && r.Method == http.MethodPost:
		h.handleExportCreate(w, r, session)
	case len(rest) <= 1:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		http.NotFound(w, r)
	}
}

type exportRequest struct {
	Formats []string `json:"formats"`
}

func (h *Handler) handleExportCreate(w http.ResponseWriter, r *http.Request, session *core.Session) {
	if h.Exports == nil {
		http.NotFound(w, r)
		return
	}
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid export request payload")
		return
	}
	formats := make([]ExportFormat, 0, len(req.Formats))
	for _, name := range req.Formats {
		format, err := ParseExportFormat(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		formats = append(formats, format)
	}
	record, err := h.Exports.EnqueueExport(r.Context(), session.ID(), session.Live(), formats)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

func (h *Handler) handleExportList(w http.ResponseWriter, r *http.Request, sessionID string) {
	if h.Exports == nil {
		http.NotFound(w, r)
		return
	}
	artifacts, err := h.Exports.ListArtifacts(r.Context(), sessionID)
	if err != nil {
		h.logger().Error("list export artifacts failed", zap.String("session", sessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "artifacts": artifacts})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, id string, rest []string) {
	if h.Exports == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	switch {
	case len(rest) == 0:
		record, ok := h.Exports.GetExport(id)
		if !ok {
			writeError(w, http.StatusNotFound, "export not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"export": record})
	case len(rest) == 2 && rest[0] == "artifacts":
		format, err := ParseExportFormat(rest[1])
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		artifact, body, err := h.Exports.OpenArtifact(r.Context(), id, format)
		if errors.Is(err, ErrExportNotFound) {
			writeError(w, http.StatusNotFound, "export artifact not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		defer func() { _ = body.Close() }()
		w.Header().Set("Content-Type", artifact.ContentType)
		w.Header().Set("Content-Length", strconv.FormatInt(artifact.SizeBytes, 10))
		if artifact.ETag != "" {
			w.Header().Set("ETag", strconv.Quote(artifact.ETag))
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.%s\"", id, format))
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, body)
	default:
		http.NotFound(w, r)
	}
}

// sessionView is the JSON form of a session's live state.
type sessionView struct {
	SessionID           string            `json:"session_id"`
	Generation          uint64            `json:"generation"`
	Controls            core.ControlsView `json:"controls"`
	DatasetIDs          []string          `json:"dataset_ids"`
	ConcentrationBounds *core.Range       `json:"concentration_bounds,omitempty"`
	BaselineRows        int               `json:"baseline_rows"`
	Rows                []domain.Record   `json:"rows"`
}

func newSessionView(session *core.Session) sessionView {
	live := session.Live()
	b := session.Baseline()
	view := sessionView{
		SessionID:    session.ID(),
		Generation:   live.Generation(),
		Controls:     live.Controls().View(),
		DatasetIDs:   b.DatasetIDs(),
		BaselineRows: b.Len(),
		Rows:         live.Rows(),
	}
	if bounds, ok := b.ConcentrationBounds(); ok {
		view.ConcentrationBounds = &bounds
	}
	return view
}

type controlsRequest struct {
	AreaCutoff         *float64    `json:"area_cutoff"`
	ConcentrationRange *core.Range `json:"concentration_range"`
	SelectedDatasetIDs *[]string   `json:"selected_dataset_ids"`
}

func decodeControlsJSON(body io.Reader) (core.ControlUpdate, error) {
	var req controlsRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return core.ControlUpdate{}, badRequest{fmt.Errorf("invalid controls payload: %w", err)}
	}
	update := core.ControlUpdate{
		AreaCutoff:         req.AreaCutoff,
		ConcentrationRange: req.ConcentrationRange,
	}
	if req.SelectedDatasetIDs != nil {
		update.SelectedDatasetIDs = *req.SelectedDatasetIDs
		update.ReplaceSelection = true
	}
	return update, nil
}

// Form field names of the controls form.
const (
	fieldAreaCutoff      = "area_cutoff"
	fieldConcMin         = "conc_min"
	fieldConcMax         = "conc_max"
	fieldDatasets        = "datasets"
	fieldDatasetsPresent = "datasets_present"
)

// decodeControlsForm builds an update holding only the controls whose
// submitted value differs from current.
func decodeControlsForm(r *http.Request, current core.Controls) (core.ControlUpdate, error) {
	if err := r.ParseForm(); err != nil {
		return core.ControlUpdate{}, badRequest{fmt.Errorf("invalid form: %w", err)}
	}
	var update core.ControlUpdate
	if raw := strings.TrimSpace(r.PostForm.Get(fieldAreaCutoff)); raw != "" {
		v, err := parseNumber(core.ControlAreaCutoff, raw)
		if err != nil {
			return core.ControlUpdate{}, err
		}
		if v != current.AreaCutoff() {
			update.AreaCutoff = &v
		}
	}
	rng := current.ConcentrationRange()
	changed := false
	for field, bound := range map[string]*float64{fieldConcMin: &rng.Min, fieldConcMax: &rng.Max} {
		raw := strings.TrimSpace(r.PostForm.Get(field))
		if raw == "" {
			continue
		}
		v, err := parseNumber(core.ControlConcentrationRange, raw)
		if err != nil {
			return core.ControlUpdate{}, err
		}
		if v != *bound {
			*bound = v
			changed = true
		}
	}
	if changed {
		update.ConcentrationRange = &rng
	}
	if r.PostForm.Get(fieldDatasetsPresent) != "" {
		ids := r.PostForm[fieldDatasets]
		if !sameSelection(current, ids) {
			update.SelectedDatasetIDs = ids
			update.ReplaceSelection = true
		}
	}
	return update, nil
}

func parseNumber(control, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, domain.ErrInvalidControlValue{Control: control, Reason: fmt.Sprintf("%q is not a number", raw)}
	}
	return v, nil
}

func sameSelection(current core.Controls, ids []string) bool {
	selected := current.SelectedDatasetIDs()
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if !current.IsSelected(id) {
			return false
		}
		set[id] = struct{}{}
	}
	return len(set) == len(selected)
}

type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		invalid     domain.ErrInvalidControlValue
		unavailable domain.ErrStoreUnavailable
		bad         badRequest
	)
	switch {
	case errors.As(err, &invalid), errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func isJSONRequest(r *http.Request) bool {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && ct == "application/json"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
