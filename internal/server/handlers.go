package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/derekprior/fixture/internal/config"
	"github.com/derekprior/fixture/internal/excel"
	"github.com/derekprior/fixture/internal/metrics"
	"github.com/derekprior/fixture/internal/schedule"
	"github.com/derekprior/fixture/internal/strategy"
	"github.com/derekprior/fixture/internal/teams"
	"github.com/derekprior/fixture/internal/zone"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type scheduledMatch struct {
	MatchID int    `json:"match_id"`
	Day     int    `json:"day"`
	Date    string `json:"date,omitempty"`
	Time    string `json:"time"`
	Field   string `json:"field"`
	Home    string `json:"home"`
	Away    string `json:"away"`
	Zone    string `json:"zone"`
	Round   int    `json:"round"`
}

type teamSummary struct {
	Zone    string `json:"zone"`
	Matches int    `json:"matches"`
	MinGap  int    `json:"min_gap"`
}

type generateResponse struct {
	Schedule []scheduledMatch       `json:"schedule"`
	Teams    map[string]teamSummary `json:"teams"`
}

type partsResponse struct {
	Timeslots []schedule.Slot `json:"timeslots"`
	Matches   []strategy.Game `json:"matches"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	id := s.sessions.Create()
	s.logger.Debug().Str("session", id).Msg("session created")
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, codeSessionNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// importTeams replaces the session's team list from a multipart upload in
// the "file" field or a JSON body {"teams": [...]}.
func (s *Server) importTeams(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Get(id); err != nil {
		writeError(w, http.StatusNotFound, codeSessionNotFound, err.Error())
		return
	}

	var (
		list []config.Team
		err  error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			writeError(w, http.StatusBadRequest, codeMissingFile, `a team list is required in the "file" field`)
			return
		}
		defer file.Close()
		if strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
			list, err = teams.ReadWorkbook(file)
		} else {
			list, err = teams.ReadCSV(file)
		}
	} else {
		var body struct {
			Teams []config.Team `json:"teams"`
		}
		if derr := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); derr != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, derr.Error())
			return
		}
		list = teams.Clean(body.Teams)
		if len(list) == 0 {
			err = teams.ErrNoTeams
		} else {
			err = config.ValidateTeams(list)
		}
	}
	switch {
	case errors.Is(err, teams.ErrNoTeams):
		writeError(w, http.StatusBadRequest, codeNoTeams, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, codeInvalidTeams, err.Error())
		return
	}

	if err := s.sessions.Update(id, func(sess *Session) { sess.Teams = list }); err != nil {
		writeError(w, http.StatusNotFound, codeSessionNotFound, err.Error())
		return
	}
	s.logger.Info().Str("session", id).Int("teams", len(list)).Msg("teams imported")
	writeJSON(w, http.StatusOK, map[string][]config.Team{"teams": list})
}

// prepared is the input of one scheduling request.
type prepared struct {
	cfg   *config.Config
	games []strategy.Game
	slots []schedule.Slot
}

// prepare decodes the config body and builds the matches and slots for the
// session's teams. It writes the error response itself and returns false on
// failure.
func (s *Server) prepare(w http.ResponseWriter, r *http.Request, id string) (*prepared, bool) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, codeSessionNotFound, err.Error())
		return nil, false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
		return nil, false
	}
	cfg, err := config.LoadFromJSON(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidConfig, err.Error())
		return nil, false
	}
	if cfg.TeamsFile != "" {
		writeError(w, http.StatusBadRequest, codeInvalidConfig, "teams_file is not accepted over HTTP; upload the team list instead")
		return nil, false
	}

	list := sess.Teams
	if len(list) == 0 {
		list = teams.Clean(cfg.Teams)
	}
	if len(list) == 0 {
		writeError(w, http.StatusBadRequest, codeNoTeams, teams.ErrNoTeams.Error())
		return nil, false
	}

	zoned := zone.Assign(list, cfg.System)
	if err := config.ValidateTeams(zoned); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidTeams, err.Error())
		return nil, false
	}
	return &prepared{
		cfg:   cfg,
		games: strategy.GenerateMatchups(zoned, cfg.System, cfg.HomeAndAway),
		slots: schedule.GenerateSlots(cfg),
	}, true
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := s.prepare(w, r, id)
	if !ok {
		return
	}

	start := time.Now()
	if workload := len(p.games) * len(p.slots); s.maxWorkload > 0 && workload > s.maxWorkload {
		s.metrics.ObserveRun(metrics.OutcomeRejected, 0, time.Since(start))
		writeError(w, http.StatusUnprocessableEntity, codeWorkloadExceeded,
			fmt.Sprintf("%d matches over %d slots exceeds the limit of %d", len(p.games), len(p.slots), s.maxWorkload))
		return
	}

	result, err := schedule.Schedule(schedule.RulesFromConfig(p.cfg), p.slots, p.games)
	var infeasible *schedule.InfeasibleError
	switch {
	case errors.As(err, &infeasible):
		s.metrics.ObserveRun(metrics.OutcomeInfeasible, 0, time.Since(start))
		s.logger.Info().Str("session", id).
			Str("home", infeasible.Game.Home).
			Str("away", infeasible.Game.Away).
			Int("scheduled", infeasible.Scheduled).
			Int("total", infeasible.Total).
			Msg("schedule infeasible")
		writeError(w, http.StatusUnprocessableEntity, codeInfeasible, err.Error())
		return
	case err != nil:
		s.logger.Error().Err(err).Str("session", id).Msg("scheduling failed")
		writeError(w, http.StatusInternalServerError, codeInternalError, err.Error())
		return
	}
	s.metrics.ObserveRun(metrics.OutcomeScheduled, len(result.Assignments), time.Since(start))

	err = s.sessions.Update(id, func(sess *Session) {
		sess.Config = p.cfg
		sess.Result = result
		sess.Slots = p.slots
	})
	if err != nil {
		writeError(w, http.StatusNotFound, codeSessionNotFound, err.Error())
		return
	}
	s.logger.Info().Str("session", id).Int("matches", len(result.Assignments)).Msg("schedule generated")
	writeJSON(w, http.StatusOK, buildGenerateResponse(p.cfg, result))
}

func buildGenerateResponse(cfg *config.Config, result *schedule.Result) generateResponse {
	resp := generateResponse{
		Schedule: make([]scheduledMatch, 0, len(result.Assignments)),
		Teams:    make(map[string]teamSummary, len(result.TeamMetrics)),
	}
	for _, a := range result.Assignments {
		resp.Schedule = append(resp.Schedule, scheduledMatch{
			MatchID: a.MatchID,
			Day:     a.Slot.Day,
			Date:    cfg.DayLabel(a.Slot.Day),
			Time:    a.Slot.Time,
			Field:   a.Slot.Field,
			Home:    a.Game.Home,
			Away:    a.Game.Away,
			Zone:    a.Game.Zone,
			Round:   a.Game.Round,
		})
	}
	for team, m := range result.TeamMetrics {
		resp.Teams[team] = teamSummary{Zone: m.Zone, Matches: m.Matches, MinGap: m.MinGap}
	}
	return resp
}

// parts returns the slots and the unscheduled matches separately so a client
// can place matches by hand.
func (s *Server) parts(w http.ResponseWriter, r *http.Request) {
	p, ok := s.prepare(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	resp := partsResponse{Timeslots: p.slots, Matches: p.games}
	if resp.Timeslots == nil {
		resp.Timeslots = []schedule.Slot{}
	}
	if resp.Matches == nil {
		resp.Matches = []strategy.Game{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessions.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, codeSessionNotFound, err.Error())
		return
	}
	if sess.Result == nil {
		writeError(w, http.StatusConflict, codeNoSchedule, "no schedule has been generated")
		return
	}

	f, err := excel.Generate(sess.Config, sess.Result, sess.Slots, schedule.GenerateBreakSlots(sess.Config))
	if err != nil {
		s.logger.Error().Err(err).Str("session", id).Msg("rendering workbook")
		writeError(w, http.StatusInternalServerError, codeRenderFailed, err.Error())
		return
	}
	defer f.Close()
	buf, err := f.WriteToBuffer()
	if err != nil {
		s.logger.Error().Err(err).Str("session", id).Msg("writing workbook")
		writeError(w, http.StatusInternalServerError, codeRenderFailed, fmt.Errorf("%w: %w", excel.ErrRender, err).Error())
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(r.URL.Query().Get("filename"))))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// exportFilename strips any directory from the requested name and forces an
// .xlsx extension.
func exportFilename(requested string) string {
	name := filepath.Base(strings.TrimSpace(requested))
	if name == "." || name == "/" || name == "" {
		return "fixture.xlsx"
	}
	if !strings.EqualFold(filepath.Ext(name), ".xlsx") {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".xlsx"
	}
	return name
}
