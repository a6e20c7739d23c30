package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/airwayfind/wayfinding-core/internal/apierr"
	"github.com/airwayfind/wayfinding-core/internal/models"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// FacilityStoreConfig configures the read-only Postgres connection used
// to load the facility map at startup.
type FacilityStoreConfig struct {
	DSN             string
	ConnectTimeout  time.Duration
	MaxConns        int32
	BreakerTimeout  time.Duration
	BreakerMaxFails uint32
}

// FacilityStore loads the authoritative facility map from Postgres,
// wrapped in a circuit breaker so a flaky database degrades rather than
// cascading into request-path failures.
type FacilityStore struct {
	pool    *pgxpool.Pool
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewFacilityStore connects to Postgres per cfg and wraps reads in a
// circuit breaker.
func NewFacilityStore(ctx context.Context, cfg FacilityStoreConfig, logger *zap.Logger) (*FacilityStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err, "invalid facility store DSN")
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err, "failed to connect to facility store")
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "facility-store",
		Timeout:     cfg.BreakerTimeout,
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &FacilityStore{pool: pool, breaker: breaker, logger: logger}, nil
}

// Close releases the connection pool.
func (s *FacilityStore) Close() {
	s.pool.Close()
}

func (s *FacilityStore) query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.pool.Query(ctx, sql, args...)
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err, "facility store query failed")
	}
	return result.(pgx.Rows), nil
}

// LoadNodes loads every navigation node from the facility_nodes table.
func (s *FacilityStore) LoadNodes(ctx context.Context) ([]models.NavigationNode, error) {
	rows, err := s.query(ctx, `
		SELECT id, building, floor, x, y, kind, accessible, display_name
		FROM facility_nodes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []models.NavigationNode
	for rows.Next() {
		var n models.NavigationNode
		var displayName *string
		if err := rows.Scan(&n.ID, &n.Building, &n.Floor, &n.X, &n.Y, &n.Kind, &n.Accessible, &displayName); err != nil {
			return nil, apierr.Wrap(apierr.CodeInternal, err, "failed to scan facility node row")
		}
		if displayName != nil {
			n.DisplayName = *displayName
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// LoadEdges loads every navigation edge from the facility_edges table.
func (s *FacilityStore) LoadEdges(ctx context.Context) ([]models.NavigationEdge, error) {
	rows, err := s.query(ctx, `
		SELECT id, building, from_node_id, to_node_id, kind, distance_meters, accessible, base_cost_seconds
		FROM facility_edges`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []models.NavigationEdge
	for rows.Next() {
		var e models.NavigationEdge
		if err := rows.Scan(&e.ID, &e.Building, &e.FromNodeID, &e.ToNodeID, &e.Kind, &e.DistanceMeters, &e.Accessible, &e.BaseCostSeconds); err != nil {
			return nil, apierr.Wrap(apierr.CodeInternal, err, "failed to scan facility edge row")
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// LoadTransitionZones loads transition zones used by indoor/outdoor
// handoff from the facility_transition_zones table.
func (s *FacilityStore) LoadTransitionZones(ctx context.Context) ([]models.TransitionZone, error) {
	rows, err := s.query(ctx, `
		SELECT id, building, floor, hold_duration_ms, anchor_lat, anchor_lon, heading_offset_degrees
		FROM facility_transition_zones`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []models.TransitionZone
	for rows.Next() {
		var z models.TransitionZone
		var holdMs int64
		if err := rows.Scan(&z.ID, &z.Building, &z.Floor, &holdMs, &z.Anchor.Latitude, &z.Anchor.Longitude, &z.HeadingOffset); err != nil {
			return nil, apierr.Wrap(apierr.CodeInternal, err, "failed to scan transition zone row")
		}
		z.HoldDuration = time.Duration(holdMs) * time.Millisecond
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// LoadRestrictedAreas loads permanently restricted areas from the
// facility_restricted_areas table.
func (s *FacilityStore) LoadRestrictedAreas(ctx context.Context) ([]models.RestrictedArea, error) {
	rows, err := s.query(ctx, `
		SELECT id, building, floor, boundary, reason
		FROM facility_restricted_areas`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var areas []models.RestrictedArea
	for rows.Next() {
		var a models.RestrictedArea
		var boundary []byte
		if err := rows.Scan(&a.ID, &a.Building, &a.Floor, &boundary, &a.Reason); err != nil {
			return nil, apierr.Wrap(apierr.CodeInternal, err, "failed to scan restricted area row")
		}
		if err := json.Unmarshal(boundary, &a.Boundary); err != nil {
			return nil, apierr.Wrap(apierr.CodeInternal, err, "failed to decode restricted area boundary")
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}
