package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/airwayfind/wayfinding-core/internal/apierr"
	"github.com/airwayfind/wayfinding-core/internal/bus"
	"github.com/airwayfind/wayfinding-core/internal/hazard"
	"github.com/airwayfind/wayfinding-core/internal/models"
)

type handlers struct {
	deps Deps
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "activeSessions": h.deps.Bus.Count()})
}

// positionRequest is the wire shape of the position ingest API.
type positionRequest struct {
	UserID           string  `json:"userId" binding:"required"`
	Building         string  `json:"building"`
	Floor            int     `json:"floor"`
	X                float64 `json:"x"`
	Y                float64 `json:"y"`
	HeadingDegrees   float64 `json:"headingDegrees"`
	AccuracyMeters   float64 `json:"accuracyMeters"`
	Source           string  `json:"source"`
	SLAMConfidence   float64 `json:"slamConfidence,omitempty"`
	RSSIDBm          float64 `json:"rssiDbm,omitempty"`
	InTransitionZone bool    `json:"inTransitionZone,omitempty"`
}

func (h *handlers) postPosition(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Wrap(apierr.CodeInvalidInput, err, "malformed position payload"))
		return
	}
	building := models.BuildingID(req.Building)
	if building == "" {
		building = models.DefaultBuildingID
	}

	fix := models.PositionFix{
		UserID:           req.UserID,
		Building:         building,
		Floor:            req.Floor,
		X:                req.X,
		Y:                req.Y,
		HeadingDegrees:   req.HeadingDegrees,
		AccuracyMeters:   req.AccuracyMeters,
		Source:           req.Source,
		SLAMConfidence:   req.SLAMConfidence,
		RSSIDBm:          req.RSSIDBm,
		InTransitionZone: req.InTransitionZone,
		Timestamp:        time.Now().UTC(),
	}

	pose, err := h.deps.Fusion.Ingest(fix)
	if err != nil {
		writeError(c, err)
		return
	}

	actor := h.deps.Bus.GetOrCreate(req.UserID, building)
	actor.SetLastPose(pose)
	actor.Publish(bus.Event{Kind: bus.EventPose, Payload: pose, At: pose.Timestamp})

	for _, alert := range h.deps.Hazards.Evaluate(pose) {
		actor.Publish(bus.Event{Kind: bus.EventHazard, Payload: alert, At: alert.At})
	}

	result, err := h.deps.Sessions.UpdateProgress(c.Request.Context(), pose)
	if err == nil {
		if result.Deviated {
			actor.Publish(bus.Event{Kind: bus.EventDeviation, Payload: result.Session.Snapshot(), At: pose.Timestamp})
		}
		if result.Arrived {
			actor.Publish(bus.Event{Kind: bus.EventArrival, Payload: result.Session.Snapshot(), At: pose.Timestamp})
		}
	}

	c.JSON(http.StatusOK, gin.H{"pose": pose})
}

type routeRequest struct {
	UserID      string               `json:"userId" binding:"required"`
	Building    string               `json:"building"`
	StartNodeID string               `json:"startNodeId" binding:"required"`
	EndNodeID   string               `json:"endNodeId" binding:"required"`
	Options     models.RouteOptions  `json:"options"`
}

func (h *handlers) postRoute(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Wrap(apierr.CodeInvalidInput, err, "malformed route request"))
		return
	}
	building := models.BuildingID(req.Building)
	if building == "" {
		building = models.DefaultBuildingID
	}

	session, err := h.deps.Sessions.StartRoute(c.Request.Context(), req.UserID, building, req.StartNodeID, req.EndNodeID, req.Options)
	if err != nil {
		writeError(c, err)
		return
	}

	actor := h.deps.Bus.GetOrCreate(req.UserID, building)
	actor.SetActiveRoute(session.ID)

	c.JSON(http.StatusCreated, session.Snapshot())
}

func (h *handlers) getRoute(c *gin.Context) {
	userID := c.Param("userID")
	session, ok := h.deps.Sessions.Get(userID)
	if !ok {
		writeError(c, apierr.Newf(apierr.CodeInvalidInput, "no active route session for user %q", userID))
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

func (h *handlers) deleteRoute(c *gin.Context) {
	userID := c.Param("userID")
	if err := h.deps.Sessions.Cancel(userID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type hazardZoneRequest struct {
	Building  string               `json:"building"`
	Floor     int                  `json:"floor"`
	Boundary  models.Ring          `json:"boundary" binding:"required"`
	Severity  models.HazardSeverity `json:"severity" binding:"required"`
	Reason    string               `json:"reason"`
	CreatedBy string               `json:"createdBy"`
	TTLSeconds int                 `json:"ttlSeconds"`
}

func (h *handlers) postHazardZone(c *gin.Context) {
	var req hazardZoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Wrap(apierr.CodeInvalidInput, err, "malformed hazard zone request"))
		return
	}
	building := models.BuildingID(req.Building)
	if building == "" {
		building = models.DefaultBuildingID
	}

	zone, err := hazard.NewHazardZone(building, req.Floor, req.Boundary, req.Severity, req.Reason, req.CreatedBy, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.deps.Hazards.CreateZone(zone); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, zone)
}

func (h *handlers) deleteHazardZone(c *gin.Context) {
	if err := h.deps.Hazards.DeleteZone(c.Param("zoneID")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) listHazardZones(c *gin.Context) {
	building := models.BuildingID(c.DefaultQuery("building", string(models.DefaultBuildingID)))
	floor := 0
	if v := c.Query("floor"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			floor = parsed
		}
	}
	c.JSON(http.StatusOK, h.deps.Hazards.Zones(building, floor))
}

func writeError(c *gin.Context, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Wrap(apierr.CodeInternal, err, "internal error")
	}
	status := statusForCode(apiErr.Code)
	body := gin.H{"code": apiErr.Code, "message": apiErr.Message, "retryable": apiErr.Retryable}
	if apiErr.RetryAfterMs > 0 {
		body["retryAfterMs"] = apiErr.RetryAfterMs
	}
	c.JSON(status, body)
}

func statusForCode(code apierr.Code) int {
	switch code {
	case apierr.CodeInvalidInput:
		return http.StatusBadRequest
	case apierr.CodeUnauthorized:
		return http.StatusUnauthorized
	case apierr.CodeZoneNotFound, apierr.CodeNoRouteFound, apierr.CodeNoNodesNearPosition:
		return http.StatusNotFound
	case apierr.CodeZoneConflict:
		return http.StatusConflict
	case apierr.CodeRouteTimeout:
		return http.StatusGatewayTimeout
	case apierr.CodeRouteCancelled:
		return http.StatusGone
	case apierr.CodeLowConfidence, apierr.CodePoseLost:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
