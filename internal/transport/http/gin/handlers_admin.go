package httpgin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/calendar-engine/internal/domain"
)

// @Summary  Create property
// @Param    X-Organization-ID header int true "Organization ID"
// @Param    req body  CreatePropertyRequest true "payload"
// @Success  201 {object} CreatedResponse
// @Router   /admin/properties [post]
func (h *handlers) createProperty(c *gin.Context) {
	var req CreatePropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	id, err := h.svcs.Admin.CreateProperty(c.Request.Context(), orgID(c), domain.Property{
		Name:         req.Name,
		Currency:     req.Currency,
		NightlyPrice: req.NightlyPrice,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreatedResponse{ID: id})
}

// @Summary  Create rate plan
// @Param    X-Organization-ID header int true "Organization ID"
// @Param    id  path  int  true  "Property ID"
// @Param    req body  RatePlanRequest true "payload"
// @Success  201 {object} CreatedResponse
// @Failure  404 {object} ErrorResponse
// @Router   /admin/properties/{id}/rate-plans [post]
func (h *handlers) createRatePlan(c *gin.Context) {
	propertyID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	var req RatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		badRequest(c, "invalid start_date (YYYY-MM-DD)")
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		badRequest(c, "invalid end_date (YYYY-MM-DD)")
		return
	}

	id, err := h.svcs.Admin.CreateRatePlan(c.Request.Context(), orgID(c), domain.RatePlan{
		PropertyID:   propertyID,
		Name:         req.Name,
		Type:         domain.RatePlanType(req.Type),
		StartDate:    start,
		EndDate:      end,
		DaysOfWeek:   parseWeekdays(req.DaysOfWeek),
		NightlyPrice: req.NightlyPrice,
		Priority:     req.Priority,
		IsActive:     !req.Inactive,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreatedResponse{ID: id})
}

// @Summary  Set rate override for one night
// @Param    X-Organization-ID header int true "Organization ID"
// @Param    id    path  int     true  "Property ID"
// @Param    date  path  string  true  "YYYY-MM-DD"
// @Param    req   body  OverrideRequest true "payload"
// @Success  200 {object} CreatedResponse
// @Router   /admin/properties/{id}/overrides/{date} [put]
func (h *handlers) setRateOverride(c *gin.Context) {
	propertyID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	date, err := parseDate(c.Param("date"))
	if err != nil {
		badRequest(c, "invalid date (YYYY-MM-DD)")
		return
	}
	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	id, err := h.svcs.Admin.SetRateOverride(c.Request.Context(), orgID(c), domain.RateOverride{
		PropertyID: propertyID,
		Date:       date,
		Price:      req.Price,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, CreatedResponse{ID: id})
}

// @Summary  Create booking restriction
// @Param    X-Organization-ID header int true "Organization ID"
// @Param    id  path  int  true  "Property ID"
// @Param    req body  RestrictionRequest true "payload"
// @Success  201 {object} CreatedResponse
// @Router   /admin/properties/{id}/restrictions [post]
func (h *handlers) createRestriction(c *gin.Context) {
	propertyID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	var req RestrictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		badRequest(c, "invalid start_date (YYYY-MM-DD)")
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		badRequest(c, "invalid end_date (YYYY-MM-DD)")
		return
	}

	id, err := h.svcs.Admin.CreateRestriction(c.Request.Context(), orgID(c), domain.BookingRestriction{
		PropertyID:        propertyID,
		StartDate:         start,
		EndDate:           end,
		DaysOfWeek:        parseWeekdays(req.DaysOfWeek),
		ArrivalDays:       parseWeekdays(req.ArrivalDays),
		MinStay:           req.MinStay,
		MaxStay:           req.MaxStay,
		ClosedToArrival:   req.ClosedToArrival,
		ClosedToDeparture: req.ClosedToDeparture,
		GapDays:           req.GapDays,
		AdvanceNoticeDays: req.AdvanceNoticeDays,
		Priority:          req.Priority,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreatedResponse{ID: id})
}

// @Summary  Connect property to a channel listing
// @Param    X-Organization-ID header int true "Organization ID"
// @Param    id  path  int  true  "Property ID"
// @Param    req body  ConnectionRequest true "payload"
// @Success  201 {object} CreatedResponse
// @Failure  409 {object} ErrorResponse
// @Router   /admin/properties/{id}/channels [post]
func (h *handlers) connectChannel(c *gin.Context) {
	propertyID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	var req ConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	id, err := h.svcs.Admin.ConnectChannel(c.Request.Context(), orgID(c), domain.ChannelConnection{
		PropertyID:        propertyID,
		Channel:           req.Channel,
		ExternalListingID: req.ExternalListingID,
		AutoFix:           req.AutoFix,
		Active:            true,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreatedResponse{ID: id})
}

// @Summary  Create channel rate modifier
// @Param    X-Organization-ID header int true "Organization ID"
// @Param    req body  ChannelModifierRequest true "payload"
// @Success  201 {object} CreatedResponse
// @Router   /admin/channel-modifiers [post]
func (h *handlers) createChannelModifier(c *gin.Context) {
	var req ChannelModifierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	v, err := req.validity()
	if err != nil {
		badRequest(c, "invalid validity window (YYYY-MM-DD)")
		return
	}

	id, err := h.svcs.Admin.CreateChannelModifier(c.Request.Context(), orgID(c), domain.ChannelRateModifier{
		PropertyID: req.PropertyID,
		Channel:    req.Channel,
		Type:       domain.AdjustmentType(req.Type),
		Value:      req.Value,
		Priority:   req.Priority,
		IsActive:   true,
		Validity:   v,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreatedResponse{ID: id})
}

// @Summary  Create length-of-stay discount
// @Param    X-Organization-ID header int true "Organization ID"
// @Param    req body  LengthOfStayRequest true "payload"
// @Success  201 {object} CreatedResponse
// @Router   /admin/length-of-stay-discounts [post]
func (h *handlers) createLengthOfStayDiscount(c *gin.Context) {
	var req LengthOfStayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	v, err := req.validity()
	if err != nil {
		badRequest(c, "invalid validity window (YYYY-MM-DD)")
		return
	}

	id, err := h.svcs.Admin.CreateLengthOfStayDiscount(c.Request.Context(), orgID(c), domain.LengthOfStayDiscount{
		PropertyID: req.PropertyID,
		MinNights:  req.MinNights,
		MaxNights:  req.MaxNights,
		Type:       domain.AdjustmentType(req.Type),
		Value:      req.Value,
		Priority:   req.Priority,
		IsActive:   true,
		Validity:   v,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreatedResponse{ID: id})
}

// @Summary  Create occupancy pricing
// @Param    X-Organization-ID header int true "Organization ID"
// @Param    req body  OccupancyRequest true "payload"
// @Success  201 {object} CreatedResponse
// @Router   /admin/occupancy-pricing [post]
func (h *handlers) createOccupancyPricing(c *gin.Context) {
	var req OccupancyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	v, err := req.validity()
	if err != nil {
		badRequest(c, "invalid validity window (YYYY-MM-DD)")
		return
	}

	id, err := h.svcs.Admin.CreateOccupancyPricing(c.Request.Context(), orgID(c), domain.OccupancyPricing{
		PropertyID:           req.PropertyID,
		BaseOccupancy:        req.BaseOccupancy,
		MaxOccupancy:         req.MaxOccupancy,
		ExtraGuestFee:        req.ExtraGuestFee,
		ExtraChildFee:        req.ExtraChildFee,
		ChildDiscountPercent: req.ChildDiscountPercent,
		IsActive:             true,
		Validity:             v,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreatedResponse{ID: id})
}

// @Summary  Create yield rule
// @Param    X-Organization-ID header int true "Organization ID"
// @Param    req body  YieldRuleRequest true "payload"
// @Success  201 {object} CreatedResponse
// @Router   /admin/yield-rules [post]
func (h *handlers) createYieldRule(c *gin.Context) {
	var req YieldRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	trigger, err := domain.DecodeYieldTrigger(domain.YieldRuleType(req.Type), req.Trigger)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	v, err := req.validity()
	if err != nil {
		badRequest(c, "invalid validity window (YYYY-MM-DD)")
		return
	}

	id, err := h.svcs.Admin.CreateYieldRule(c.Request.Context(), orgID(c), domain.YieldRule{
		PropertyID: req.PropertyID,
		Name:       req.Name,
		Trigger:    trigger,
		Adjustment: domain.AdjustmentType(req.Adjustment),
		Value:      req.Value,
		MinPrice:   req.MinPrice,
		MaxPrice:   req.MaxPrice,
		Priority:   req.Priority,
		IsActive:   true,
		Validity:   v,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreatedResponse{ID: id})
}

// @Summary  Reconcile one channel connection now
// @Param    X-Organization-ID header int true "Organization ID"
// @Param    id  path  int  true  "Channel connection ID"
// @Success  200 {object} domain.ReconciliationRun
// @Failure  404 {object} ErrorResponse
// @Failure  502 {object} domain.ReconciliationRun "run failed"
// @Router   /admin/channels/{id}/reconcile [post]
func (h *handlers) reconcile(c *gin.Context) {
	connID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	run, err := h.svcs.Reconciliation.RunConnection(c.Request.Context(), orgID(c), connID)
	if err != nil {
		if run.Status == domain.ReconcileFailed {
			c.JSON(http.StatusBadGateway, run)
			return
		}
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}
