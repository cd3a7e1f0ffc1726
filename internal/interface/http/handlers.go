package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alem-hub/campus-progression/internal/application/command"
	"github.com/alem-hub/campus-progression/internal/application/query"
	"github.com/alem-hub/campus-progression/internal/domain/achievement"
	"github.com/alem-hub/campus-progression/internal/domain/leaderboard"
	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
	"github.com/alem-hub/campus-progression/internal/interface/http/handlers"
	"github.com/alem-hub/campus-progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"healthy": true,
			"uptime":  s.Uptime().Round(time.Second).String(),
			"version": s.config.Version,
		})
		return
	}
	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// handleReady handles the readiness probe.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// AVATAR HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type awardXPRequest struct {
	Amount       int64       `json:"amount"`
	Skill        string      `json:"skill,omitempty"`
	Source       string      `json:"source"`
	DisplayName  string      `json:"display_name,omitempty"`
	ActivityDate shared.Date `json:"activity_date"`
}

type awardXPResponse struct {
	LeveledUp       bool             `json:"leveled_up"`
	PreviousLevel   int              `json:"previous_level"`
	NewLevel        int              `json:"new_level"`
	CurrentXP       int64            `json:"current_xp"`
	SkillLeveledUp  bool             `json:"skill_leveled_up"`
	SkillLevel      int              `json:"skill_level,omitempty"`
	Streak          streakDTO        `json:"streak"`
	NewAchievements []achievementDTO `json:"new_achievements"`
}

// handleAwardXP handles POST /api/v1/avatar/{userId}/xp
func (s *Server) handleAwardXP(w http.ResponseWriter, r *http.Request) {
	var req awardXPRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.XPEngine.Award(r.Context(), command.AwardXPCommand{
		UserID:       r.PathValue("userId"),
		Amount:       req.Amount,
		Skill:        req.Skill,
		Source:       req.Source,
		DisplayName:  req.DisplayName,
		ActivityDate: req.ActivityDate,
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.writeData(w, r, http.StatusOK, awardXPResponse{
		LeveledUp:       res.LeveledUp,
		PreviousLevel:   res.PreviousLevel,
		NewLevel:        res.NewLevel,
		CurrentXP:       res.Avatar.TotalXP,
		SkillLeveledUp:  res.SkillLeveledUp,
		SkillLevel:      res.SkillLevel,
		Streak:          streakDTO{Current: res.Avatar.Streak.Current, Longest: res.Avatar.Streak.Longest, LastActivityDate: res.Avatar.Streak.LastActivityDate, Outcome: string(res.Streak.Outcome)},
		NewAchievements: toAchievementDTOs(res.NewAchievements),
	}, nil)
}

// handleGetAvatar handles GET /api/v1/avatar/{userId}
func (s *Server) handleGetAvatar(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.GetAvatar.Handle(r.Context(), r.PathValue("userId"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeData(w, r, http.StatusOK, toAvatarDTO(view), s.meta())
}

type appearanceRequest struct {
	Appearance json.RawMessage `json:"appearance"`
}

// handleUpdateAppearance handles PUT /api/v1/avatar/{userId}/appearance
func (s *Server) handleUpdateAppearance(w http.ResponseWriter, r *http.Request) {
	var req appearanceRequest
	if !s.decode(w, r, &req) {
		return
	}
	a, err := s.deps.Appearance.Handle(r.Context(), command.UpdateAppearanceCommand{
		UserID:     r.PathValue("userId"),
		Appearance: req.Appearance,
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeData(w, r, http.StatusOK, map[string]interface{}{
		"user_id":    a.UserID,
		"appearance": a.Appearance,
		"updated_at": a.UpdatedAt,
	}, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT & LEADERBOARD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListAchievements handles GET /api/v1/achievements
func (s *Server) handleListAchievements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	views, err := s.deps.ListAchievements.Handle(r.Context(), query.ListAchievementsQuery{
		Category: q.Get("category"),
		Type:     q.Get("type"),
		UserID:   userIDParam(r),
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	out := make([]achievementDTO, 0, len(views))
	for _, v := range views {
		d := toAchievementDTO(v.Definition)
		d.Earned = v.Earned
		d.EarnedAt = v.EarnedAt
		out = append(out, d)
	}
	meta := s.meta()
	meta.TotalCount = int64(len(out))
	s.writeData(w, r, http.StatusOK, out, meta)
}

// handleGetLeaderboard handles GET /api/v1/leaderboard
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = n
	}

	res, err := s.deps.Leaderboard.Handle(r.Context(), query.GetLeaderboardQuery{
		Type:  q.Get("type"),
		Skill: q.Get("skill"),
		Limit: limit,
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	meta := s.meta()
	meta.TotalCount = res.Total
	meta.Limit = len(res.Entries)
	s.writeData(w, r, http.StatusOK, map[string]interface{}{
		"scope":   res.Scope.String(),
		"entries": toEntryDTOs(res.Entries),
	}, meta)
}

// handleGetRank handles GET /api/v1/leaderboard/rank
func (s *Server) handleGetRank(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entry, err := s.deps.Leaderboard.Rank(r.Context(), query.GetRankQuery{
		UserID: userIDParam(r),
		Type:   q.Get("type"),
		Skill:  q.Get("skill"),
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeData(w, r, http.StatusOK, toEntryDTO(entry), nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// CAMPUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type presenceRequest struct {
	UserID      string `json:"user_id"`
	UserIDCamel string `json:"userId"`
	DisplayName string `json:"display_name"`
	NameCamel   string `json:"displayName"`
}

func (p presenceRequest) user() string {
	if p.UserID != "" {
		return p.UserID
	}
	return p.UserIDCamel
}

func (p presenceRequest) name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.NameCamel
}

// handleListLocations handles GET /api/v1/campus/locations
func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	views, err := s.deps.ListLocations.Handle(r.Context(), query.ListLocationsQuery{UserID: userIDParam(r)})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	out := make([]locationDTO, 0, len(views))
	for _, v := range views {
		out = append(out, toLocationDTO(v))
	}
	s.writeData(w, r, http.StatusOK, out, s.meta())
}

// handleJoinLocation handles POST /api/v1/campus/locations/{id}/join
func (s *Server) handleJoinLocation(w http.ResponseWriter, r *http.Request) {
	var req presenceRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.Presence.Join(r.Context(), command.JoinLocationCommand{
		UserID:      req.user(),
		LocationID:  r.PathValue("id"),
		DisplayName: req.name(),
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	data := map[string]interface{}{
		"location_id":     res.Location.ID,
		"already_present": res.AlreadyPresent,
		"occupancy":       res.Occupancy,
		"capacity":        res.Location.Capacity,
	}
	if res.PreviousLocation != "" {
		data["previous_location"] = res.PreviousLocation
	}
	if res.Award != nil {
		data["xp_awarded"] = res.Award.Amount
		data["current_xp"] = res.Award.Avatar.TotalXP
		data["new_achievements"] = toAchievementDTOs(res.Award.NewAchievements)
	}
	s.writeData(w, r, http.StatusOK, data, nil)
}

// handleLeaveLocation handles POST /api/v1/campus/locations/{id}/leave
func (s *Server) handleLeaveLocation(w http.ResponseWriter, r *http.Request) {
	var req presenceRequest
	if !s.decode(w, r, &req) {
		return
	}
	left, err := s.deps.Presence.Leave(r.Context(), command.LeaveLocationCommand{
		UserID:     req.user(),
		LocationID: r.PathValue("id"),
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeData(w, r, http.StatusOK, map[string]bool{"left": left}, nil)
}

// handleHeartbeat handles POST /api/v1/campus/heartbeat
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req presenceRequest
	if !s.decode(w, r, &req) {
		return
	}
	present, err := s.deps.Presence.Heartbeat(r.Context(), req.user())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeData(w, r, http.StatusOK, map[string]bool{"present": present}, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// handleError maps domain errors to HTTP statuses.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)

	msg := err.Error()
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		msg = de.Message
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			logger.String("path", r.URL.Path),
			logger.String("code", code),
			logger.String("request_id", handlers.RequestID(r.Context())),
			logger.Err(err),
		)
		if status == http.StatusInternalServerError {
			msg = "An unexpected error occurred"
		}
	}
	s.writeError(w, r, status, code, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrConflictRetryExhausted):
		return http.StatusServiceUnavailable, "conflict_retry_exhausted"
	case errors.Is(err, shared.ErrStorage), errors.Is(err, shared.ErrTimeout), errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	case errors.Is(err, shared.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, shared.ErrUnknownSkill):
		return http.StatusBadRequest, "unknown_skill"
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, shared.ErrAccessDenied):
		return http.StatusForbidden, "access_denied"
	case errors.Is(err, shared.ErrCapacityExceeded):
		return http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, shared.ErrNotRanked):
		return http.StatusNotFound, "not_ranked"
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decode reads a JSON body. An empty body leaves dst untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "body_too_large", "request body is too large")
		return false
	}
	s.writeError(w, r, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
	return false
}

// userIDParam accepts both user_id and userId.
func userIDParam(r *http.Request) string {
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("user_id")); v != "" {
		return v
	}
	return strings.TrimSpace(q.Get("userId"))
}

// ══════════════════════════════════════════════════════════════════════════════
// DTO
// ══════════════════════════════════════════════════════════════════════════════

type streakDTO struct {
	Current          int         `json:"current"`
	Longest          int         `json:"longest"`
	LastActivityDate shared.Date `json:"last_activity_date"`
	Outcome          string      `json:"outcome,omitempty"`
}

type achievementDTO struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Icon        string              `json:"icon"`
	Category    string              `json:"category"`
	Rarity      string              `json:"rarity"`
	Secret      bool                `json:"secret,omitempty"`
	Rewards     achievement.Rewards `json:"rewards"`
	Earned      bool                `json:"earned,omitempty"`
	EarnedAt    *time.Time          `json:"earned_at,omitempty"`
}

func toAchievementDTO(d achievement.Definition) achievementDTO {
	return achievementDTO{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Icon:        d.Icon,
		Category:    string(d.Category),
		Rarity:      string(d.Rarity),
		Secret:      d.Secret,
		Rewards:     d.Rewards,
	}
}

func toAchievementDTOs(defs []achievement.Definition) []achievementDTO {
	out := make([]achievementDTO, 0, len(defs))
	for _, d := range defs {
		out = append(out, toAchievementDTO(d))
	}
	return out
}

type levelDTO struct {
	Level       int   `json:"level"`
	XPIntoLevel int64 `json:"xp_into_level"`
	XPToNext    int64 `json:"xp_to_next"`
	Percent     int   `json:"percent"`
}

type avatarDTO struct {
	UserID       shared.UserID                     `json:"user_id"`
	DisplayName  string                            `json:"display_name"`
	TotalXP      int64                             `json:"total_xp"`
	Level        levelDTO                          `json:"level"`
	Coins        int64                             `json:"coins"`
	Gems         int64                             `json:"gems"`
	Skills       map[string]progress.SkillProgress `json:"skills"`
	Achievements []achievementDTO                  `json:"achievements"`
	Titles       []string                          `json:"titles"`
	Streak       streakDTO                         `json:"streak"`
	Appearance   json.RawMessage                   `json:"appearance,omitempty"`
	CreatedAt    time.Time                         `json:"created_at"`
	UpdatedAt    time.Time                         `json:"updated_at"`
}

func toAvatarDTO(v *query.AvatarView) avatarDTO {
	a := v.Avatar
	skills := make(map[string]progress.SkillProgress, len(a.Skills))
	for sk, sp := range a.Skills {
		skills[string(sk)] = sp
	}

	earnedAt := make(map[string]time.Time, len(a.Achievements))
	for _, e := range a.Achievements {
		earnedAt[e.ID] = e.EarnedAt
	}
	achievements := make([]achievementDTO, 0, len(v.Earned))
	for _, d := range v.Earned {
		dto := toAchievementDTO(d)
		dto.Earned = true
		if at, ok := earnedAt[d.ID]; ok {
			dto.EarnedAt = &at
		}
		achievements = append(achievements, dto)
	}

	titles := a.Titles
	if titles == nil {
		titles = []string{}
	}

	return avatarDTO{
		UserID:      a.UserID,
		DisplayName: a.DisplayName,
		TotalXP:     a.TotalXP,
		Level: levelDTO{
			Level:       v.Progress.Level,
			XPIntoLevel: v.Progress.XPIntoLevel,
			XPToNext:    v.Progress.XPToNext,
			Percent:     v.Progress.Percent(),
		},
		Coins:        a.Coins,
		Gems:         a.Gems,
		Skills:       skills,
		Achievements: achievements,
		Titles:       titles,
		Streak: streakDTO{
			Current:          v.ActiveStreak,
			Longest:          a.Streak.Longest,
			LastActivityDate: a.Streak.LastActivityDate,
		},
		Appearance: a.Appearance,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

type entryDTO struct {
	Rank        int           `json:"rank"`
	UserID      shared.UserID `json:"user_id"`
	DisplayName string        `json:"display_name"`
	XP          int64         `json:"xp"`
	Level       int           `json:"level"`
}

func toEntryDTO(e leaderboard.Entry) entryDTO {
	return entryDTO{
		Rank:        int(e.Rank),
		UserID:      e.UserID,
		DisplayName: e.DisplayName,
		XP:          e.XP,
		Level:       e.Level,
	}
}

func toEntryDTOs(entries []leaderboard.Entry) []entryDTO {
	out := make([]entryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryDTO(e))
	}
	return out
}

type occupantDTO struct {
	UserID      shared.UserID `json:"user_id"`
	DisplayName string        `json:"display_name"`
	JoinedAt    time.Time     `json:"joined_at"`
}

type locationDTO struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Capacity    int           `json:"capacity"`
	Occupancy   int           `json:"occupancy"`
	Access      string        `json:"access"`
	Occupants   []occupantDTO `json:"occupants"`
	CanJoin     bool          `json:"can_join"`
	Present     bool          `json:"present,omitempty"`
}

func toLocationDTO(v query.LocationView) locationDTO {
	occ := make([]occupantDTO, 0, len(v.Occupants))
	for _, o := range v.Occupants {
		occ = append(occ, occupantDTO{UserID: o.UserID, DisplayName: o.DisplayName, JoinedAt: o.JoinedAt})
	}
	return locationDTO{
		ID:          v.Location.ID,
		Name:        v.Location.Name,
		Description: v.Location.Description,
		Capacity:    v.Location.Capacity,
		Occupancy:   v.Occupancy,
		Access:      v.Location.Access.String(),
		Occupants:   occ,
		CanJoin:     v.CanJoin,
		Present:     v.Present,
	}
}
