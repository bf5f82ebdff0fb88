package http

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/habitquest/duel-engine/internal/application/command"
	"github.com/habitquest/duel-engine/internal/application/query"
	"github.com/habitquest/duel-engine/internal/domain/challenge"
	"github.com/habitquest/duel-engine/internal/domain/leveling"
	"github.com/habitquest/duel-engine/internal/domain/persona"
	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST BODIES
// ══════════════════════════════════════════════════════════════════════════════

type proposeChallengeRequest struct {
	OpponentID   string `json:"opponent_id"`
	HabitID      string `json:"habit_id"`
	DurationDays int    `json:"duration_days"`
	StakeXP      int64  `json:"stake_xp"`
}

type respondRequest struct {
	Decision string `json:"decision"`
}

type recordCompletionRequest struct {
	HabitID string `json:"habit_id"`
	// Date is YYYY-MM-DD; empty means today.
	Date string `json:"date"`
}

type classifyPersonaRequest struct {
	Answers *persona.Answers `json:"answers"`
	Save    bool             `json:"save"`
}

type grantXPRequest struct {
	UserID    string `json:"user_id"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE BODIES
// ══════════════════════════════════════════════════════════════════════════════

type proposeChallengeResponse struct {
	Challenge         query.ChallengeDTO `json:"challenge"`
	DurationDefaulted bool               `json:"duration_defaulted"`
	StakeSuggested    bool               `json:"stake_suggested"`
}

type settleResponse struct {
	Challenge query.ChallengeDTO `json:"challenge"`
	Draw      bool               `json:"draw"`
	WinnerID  string             `json:"winner_id,omitempty"`
}

type progressDTO struct {
	ChallengeID string `json:"challenge_id"`
	Side        string `json:"side"`
	Progress    int    `json:"progress"`
	Settled     bool   `json:"settled"`
}

type completionResponse struct {
	Date       string        `json:"date"`
	Duplicate  bool          `json:"duplicate"`
	Progressed []progressDTO `json:"progressed"`
}

type grantXPResponse struct {
	EntryID      string        `json:"entry_id"`
	BalanceAfter int64         `json:"balance_after"`
	Level        leveling.Info `json:"level"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(c *fiber.Ctx) error {
	status := s.deps.Health.Check(c.UserContext())
	code := fiber.StatusOK
	if !status.Healthy {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(status)
}

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleProposeChallenge(c *fiber.Ctx) error {
	var req proposeChallengeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := s.deps.ProposeChallenge.Handle(c.UserContext(), command.ProposeChallengeCommand{
		ChallengerID:  callerID(c),
		OpponentID:    req.OpponentID,
		HabitID:       req.HabitID,
		DurationDays:  req.DurationDays,
		StakeXP:       req.StakeXP,
		CorrelationID: requestID(c),
	})
	if err != nil {
		return err
	}
	return writeJSON(c, fiber.StatusCreated, proposeChallengeResponse{
		Challenge:         query.NewChallengeDTO(res.Challenge),
		DurationDefaulted: res.DurationDefaulted,
		StakeSuggested:    res.StakeSuggested,
	})
}

func (s *Server) handleGetChallenge(c *fiber.Ctx) error {
	dto, err := s.deps.Challenges.Get(c.UserContext(), query.GetChallengeQuery{
		ChallengeID: c.Params("id"),
		CallerID:    callerID(c),
	})
	if err != nil {
		return err
	}
	return writeJSON(c, fiber.StatusOK, dto)
}

func (s *Server) handleRespondToChallenge(c *fiber.Ctx) error {
	var req respondRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := s.deps.RespondToChallenge.Handle(c.UserContext(), command.RespondToChallengeCommand{
		ChallengeID:   c.Params("id"),
		CallerID:      callerID(c),
		Decision:      command.Decision(strings.ToLower(strings.TrimSpace(req.Decision))),
		CorrelationID: requestID(c),
	})
	if err != nil {
		return err
	}
	return writeJSON(c, fiber.StatusOK, query.NewChallengeDTO(res.Challenge))
}

func (s *Server) handleCancelChallenge(c *fiber.Ctx) error {
	res, err := s.deps.CancelChallenge.Handle(c.UserContext(), command.CancelChallengeCommand{
		ChallengeID:   c.Params("id"),
		CallerID:      callerID(c),
		CorrelationID: requestID(c),
	})
	if err != nil {
		return err
	}
	return writeJSON(c, fiber.StatusOK, query.NewChallengeDTO(res.Challenge))
}

func (s *Server) handleSettleChallenge(c *fiber.Ctx) error {
	res, err := s.deps.SettleChallenge.Handle(c.UserContext(), command.SettleChallengeCommand{
		ChallengeID:   c.Params("id"),
		CallerID:      callerID(c),
		CorrelationID: requestID(c),
	})
	if err != nil {
		return err
	}
	return writeJSON(c, fiber.StatusOK, settleResponse{
		Challenge: query.NewChallengeDTO(res.Challenge),
		Draw:      res.Outcome.Draw,
		WinnerID:  res.Outcome.WinnerID.String(),
	})
}

func (s *Server) handleListChallenges(c *fiber.Ctx) error {
	userID := c.Params("id")
	if userID != callerID(c) {
		return shared.NewDomainError("challenge", "List", shared.ErrUnauthorized, "callers can only list their own challenges")
	}

	var statuses []challenge.Status
	for _, v := range strings.Split(c.Query("status"), ",") {
		if v = strings.TrimSpace(v); v != "" {
			statuses = append(statuses, challenge.Status(v))
		}
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}

	list, err := s.deps.Challenges.List(c.UserContext(), query.ListChallengesQuery{
		UserID:   userID,
		Statuses: statuses,
		Limit:    limit,
	})
	if err != nil {
		return err
	}
	return writeList(c, list)
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETIONS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRecordCompletion(c *fiber.Ctx) error {
	var req recordCompletionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	var day time.Time
	if req.Date != "" {
		d, err := timeutil.ParseDate(req.Date, s.config.Location)
		if err != nil {
			return shared.WrapError("completion", "Parse", shared.ErrValidation, "date must be YYYY-MM-DD", err)
		}
		day = d
	}

	res, err := s.deps.RecordCompletion.Handle(c.UserContext(), command.RecordCompletionCommand{
		UserID:        callerID(c),
		HabitID:       req.HabitID,
		Date:          day,
		CorrelationID: requestID(c),
	})
	if err != nil {
		return err
	}

	out := completionResponse{
		Date:       timeutil.FormatDate(res.Date),
		Duplicate:  res.Duplicate,
		Progressed: make([]progressDTO, 0, len(res.Progressed)),
	}
	for _, p := range res.Progressed {
		out.Progressed = append(out.Progressed, progressDTO{
			ChallengeID: p.ChallengeID.String(),
			Side:        string(p.Side),
			Progress:    p.Progress,
			Settled:     p.Settled,
		})
	}
	return writeJSON(c, fiber.StatusOK, out)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEVELS & STAKES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleLevelForXP(c *fiber.Ctx) error {
	xp, err := strconv.ParseInt(c.Params("xp"), 10, 64)
	if err != nil || xp < 0 {
		return shared.NewDomainError("leveling", "Calculate", shared.ErrValidation, "xp must be a non-negative integer")
	}
	return writeJSON(c, fiber.StatusOK, query.LevelInfoForXP(xp))
}

func (s *Server) handleGetLevel(c *fiber.Ctx) error {
	dto, err := s.deps.GetLevelInfo.Handle(c.UserContext(), query.GetLevelInfoQuery{UserID: c.Params("id")})
	if err != nil {
		return err
	}
	return writeJSON(c, fiber.StatusOK, dto)
}

func (s *Server) handleXPHistory(c *fiber.Ctx) error {
	userID := c.Params("id")
	if userID != callerID(c) {
		return shared.NewDomainError("ledger", "History", shared.ErrUnauthorized, "callers can only read their own history")
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	entries, err := s.deps.GetXPHistory.Handle(c.UserContext(), query.GetXPHistoryQuery{UserID: userID, Limit: limit})
	if err != nil {
		return err
	}
	return writeList(c, entries)
}

func (s *Server) handleSuggestStake(c *fiber.Ctx) error {
	suggestion, err := s.deps.SuggestStake.Handle(c.UserContext(), query.SuggestStakeQuery{
		ChallengerID: callerID(c),
		OpponentID:   c.Query("opponent_id"),
	})
	if err != nil {
		return err
	}
	return writeJSON(c, fiber.StatusOK, suggestion)
}

// ══════════════════════════════════════════════════════════════════════════════
// PERSONA
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleClassifyPersona(c *fiber.Ctx) error {
	var req classifyPersonaRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	res, err := s.deps.ClassifyPersona.Handle(c.UserContext(), query.ClassifyPersonaQuery{
		UserID:  callerID(c),
		Answers: req.Answers,
		Save:    req.Save,
	})
	if err != nil {
		return err
	}
	return writeJSON(c, fiber.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGrantXP(c *fiber.Ctx) error {
	var req grantXPRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := s.deps.GrantXP.Handle(c.UserContext(), command.GrantXPCommand{
		UserID:        req.UserID,
		Amount:        req.Amount,
		Reference:     req.Reference,
		CorrelationID: requestID(c),
	})
	if err != nil {
		return err
	}
	return writeJSON(c, fiber.StatusCreated, grantXPResponse{
		EntryID:      res.Entry.ID,
		BalanceAfter: res.Entry.BalanceAfter,
		Level:        res.Level,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return shared.WrapError("http", "ParseBody", shared.ErrValidation, "invalid request body", err)
	}
	return nil
}

func queryInt(c *fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, shared.NewDomainError("http", "Query", shared.ErrValidation, key+" must be a non-negative integer")
	}
	return n, nil
}
