package httpgin

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/calendar-engine/internal/domain"
	redisx "github.com/kirinyoku/calendar-engine/internal/redis"
	redisrepo "github.com/kirinyoku/calendar-engine/internal/repository/redis"
	"github.com/kirinyoku/calendar-engine/internal/service/calendar"
	"github.com/kirinyoku/calendar-engine/internal/service/pricing"
)

// @Summary  Execute calendar command (idempotent)
// @Param    X-Organization-ID header int true "Organization ID"
// @Param    Idempotency-Key header string false "Idempotency key"
// @Param    id  path  int  true  "Property ID"
// @Param    req body  CommandRequest true "command"
// @Success  200 {object} calendar.Result
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "state conflict / idem in progress"
// @Failure  422 {object} ErrorResponse "restriction violation / idempotency key reused"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Failure  503 {object} ErrorResponse "property busy"
// @Router   /properties/{id}/commands [post]
func (h *handlers) executeCommand(c *gin.Context) {
	propertyID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	checkIn, err := parseDate(req.CheckIn)
	if err != nil {
		badRequest(c, "invalid check_in (YYYY-MM-DD)")
		return
	}
	checkOut, err := parseDate(req.CheckOut)
	if err != nil {
		badRequest(c, "invalid check_out (YYYY-MM-DD)")
		return
	}

	ctx := c.Request.Context()
	org := orgID(c)

	idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	var (
		idemStorageKey string
		claim          redisrepo.Claim
	)
	if h.idem != nil && idemKey != "" {
		idemStorageKey = redisx.KeyIdemCommand(org, propertyID, idemKey)

		claim, err = h.idem.Begin(ctx, idemStorageKey, fingerprint(req))
		if err != nil {
			respondErr(c, err)
			return
		}
		switch claim.State {
		case redisrepo.ClaimCompleted:
			c.Header("Idempotency-Key", idemKey)
			c.Data(http.StatusOK, "application/json; charset=utf-8", claim.Response)
			return
		case redisrepo.ClaimInProgress:
			c.Header("Retry-After", "1")
			c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
			return
		case redisrepo.ClaimMismatch:
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "idempotency key was used for a different request"})
			return
		}
	}

	res, err := h.svcs.Calendar.Execute(ctx, calendar.Command{
		OrganizationID: org,
		PropertyID:     propertyID,
		Type:           domain.CommandType(req.Type),
		Range:          domain.DateRange{CheckIn: checkIn, CheckOut: checkOut},
		Source:         req.Source,
		Actor:          req.Actor,
		Payload:        req.payload(),
	})
	if err != nil {
		if idemStorageKey != "" {
			_ = h.idem.Abandon(ctx, idemStorageKey, claim)
		}
		respondErr(c, err)
		return
	}

	if idemStorageKey != "" {
		b, _ := json.Marshal(res)
		if err := h.idem.Complete(ctx, idemStorageKey, claim, b); err != nil {
			h.log.Warn("idempotent response not stored",
				slog.String("key", idemKey),
				slog.String("err", err.Error()),
			)
		}
		c.Header("Idempotency-Key", idemKey)
	}

	c.JSON(http.StatusOK, res)
}

// fingerprint binds an Idempotency-Key to the request it was first sent with.
func fingerprint(req CommandRequest) string {
	b, _ := json.Marshal(req)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// @Summary  Get calendar
// @Param    X-Organization-ID header int true "Organization ID"
// @Param    id    path   int     true  "Property ID"
// @Param    from  query  string  true  "first night (YYYY-MM-DD)"
// @Param    to    query  string  true  "day after the last night (YYYY-MM-DD)"
// @Success  200  {object}  query.CalendarView
// @Failure  404  {object}  ErrorResponse
// @Router   /properties/{id}/calendar [get]
func (h *handlers) getCalendar(c *gin.Context) {
	propertyID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	from, err := parseDate(c.Query("from"))
	if err != nil {
		badRequest(c, "invalid from (YYYY-MM-DD)")
		return
	}
	to, err := parseDate(c.Query("to"))
	if err != nil {
		badRequest(c, "invalid to (YYYY-MM-DD)")
		return
	}

	view, err := h.svcs.Query.Calendar(c.Request.Context(), orgID(c), propertyID, domain.DateRange{CheckIn: from, CheckOut: to})
	if err != nil {
		respondErr(c, err)
		return
	}
	writeJSONWithCache(c, http.StatusOK, view, "private, max-age=15")
}

// @Summary  Resolve one night's price
// @Param    X-Organization-ID header int true "Organization ID"
// @Param    id        path   int     true   "Property ID"
// @Param    date      query  string  true   "night (YYYY-MM-DD)"
// @Param    channel   query  string  false  "sales channel"
// @Param    adults    query  int     false  "adults"
// @Param    children  query  int     false  "children"
// @Param    nights    query  int     false  "length of the stay"
// @Success  200  {object}  pricing.NightPrice
// @Router   /properties/{id}/price [get]
func (h *handlers) getPrice(c *gin.Context) {
	propertyID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	date, err := parseDate(c.Query("date"))
	if err != nil {
		badRequest(c, "invalid date (YYYY-MM-DD)")
		return
	}

	np, err := h.svcs.Query.Price(c.Request.Context(), orgID(c), pricing.Query{
		PropertyID: propertyID,
		Date:       date,
		Channel:    c.Query("channel"),
		Adults:     parseIntDefault(c.Query("adults"), 0),
		Children:   parseIntDefault(c.Query("children"), 0),
		Nights:     parseIntDefault(c.Query("nights"), 1),
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	writeJSONWithCache(c, http.StatusOK, np, "private, max-age=60")
}

// @Summary  Quote a stay
// @Param    X-Organization-ID header int true "Organization ID"
// @Param    id         path   int     true   "Property ID"
// @Param    check_in   query  string  true   "YYYY-MM-DD"
// @Param    check_out  query  string  true   "YYYY-MM-DD"
// @Param    channel    query  string  false  "sales channel"
// @Param    adults     query  int     false  "adults"
// @Param    children   query  int     false  "children"
// @Success  200  {object}  pricing.Quote
// @Router   /properties/{id}/quote [get]
func (h *handlers) getQuote(c *gin.Context) {
	propertyID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	checkIn, err := parseDate(c.Query("check_in"))
	if err != nil {
		badRequest(c, "invalid check_in (YYYY-MM-DD)")
		return
	}
	checkOut, err := parseDate(c.Query("check_out"))
	if err != nil {
		badRequest(c, "invalid check_out (YYYY-MM-DD)")
		return
	}

	q, err := h.svcs.Query.Quote(c.Request.Context(), orgID(c), pricing.StayQuery{
		PropertyID: propertyID,
		Range:      domain.DateRange{CheckIn: checkIn, CheckOut: checkOut},
		Channel:    c.Query("channel"),
		Adults:     parseIntDefault(c.Query("adults"), 0),
		Children:   parseIntDefault(c.Query("children"), 0),
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	writeJSONWithCache(c, http.StatusOK, q, "private, max-age=60")
}

// @Summary  List command log
// @Param    X-Organization-ID header int true "Organization ID"
// @Param    id     path   int  true   "Property ID"
// @Param    limit  query  int  false  "latest N entries"
// @Success  200  {array}  domain.CalendarCommand
// @Router   /properties/{id}/commands [get]
func (h *handlers) listCommands(c *gin.Context) {
	propertyID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			badRequest(c, "invalid limit")
			return
		}
		limit = n
	}

	cmds, err := h.svcs.Query.Commands(c.Request.Context(), orgID(c), propertyID, limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, cmds)
}
