// Package db provides PostgreSQL-backed repository implementations for the
// accounting service. All repositories accept a DBTX interface that is
// satisfied by both *pgxpool.Pool (for normal queries) and pgx.Tx (for
// transactional execution), enabling clean transaction support.
//
// Tables:
//
//	users             (id bigserial PK, username, email unique, password_hash,
//	                   token unique, is_active, email_verified, created_at)
//	plans             (id text PK, name, block_quota, monthly_traffic_quota)
//	profiles          (user_id bigint PK -> users ON DELETE CASCADE,
//	                   subscribed_plan_id -> plans ON DELETE RESTRICT,
//	                   created_on_behalf, needs_confirmation_after,
//	                   next_confirmation_mail, used_storage, downloads,
//	                   plus_notification_mail, pro_notification_mail, created_at)
//	plan_intervals    (id bigserial PK, profile_id -> profiles,
//	                   plan_id -> plans ON DELETE RESTRICT, duration_us,
//	                   state, started_at, index (profile_id, state))
//	plan_log          (id bigserial PK, profile_id -> profiles ON DELETE RESTRICT,
//	                   plan_id -> plans ON DELETE RESTRICT,
//	                   interval_id -> plan_intervals ON DELETE RESTRICT,
//	                   action, timestamp default now(), origin)
//	prefixes          (id uuid PK, user_id -> users, size, downloads, created_at)
//
// The RESTRICT foreign keys back the referential-protection rule: a plan (or
// interval, or profile) referenced by history cannot be deleted.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// fkViolation is the PostgreSQL error code for foreign key violations
// (class 23, integrity constraint violation). Used to translate RESTRICT
// failures into domain conflict errors.
const fkViolation = "23503"

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const uniqueViolation = "23505"
