// Package directory resolves which business answers a given phone
// number, backed by Postgres.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ai-call-bridge-service/internal/observability/logging"
	"ai-call-bridge-service/internal/session"
)

// PostgresDirectory resolves businesses from the phone_endpoints,
// businesses, business_configs, and business_prompts tables.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a directory over the given pool.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// configDocument mirrors the business_configs JSON blob.
type configDocument struct {
	Hours    map[string][]periodDocument `json:"hours"`
	Services []serviceDocument           `json:"services"`
	Voice    struct {
		Voice    string `json:"voice"`
		Language string `json:"language"`
	} `json:"voice"`
	ForwardingNumber string `json:"forwardingNumber"`
	BookingRules     string `json:"bookingRules"`
}

type periodDocument struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

type serviceDocument struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"durationMinutes"`
}

// ResolveBusiness maps a callee phone number to its business context.
// A number with no active voice endpoint, or an endpoint pointing at a
// missing business, yields ErrBusinessNotFound. Missing config or
// prompt rows are not errors; defaults apply.
func (d *PostgresDirectory) ResolveBusiness(ctx context.Context, phoneNumber string) (session.BusinessContext, error) {
	var businessID string
	err := d.pool.QueryRow(ctx, `
		SELECT business_id
		FROM phone_endpoints
		WHERE phone_number = $1
		  AND channel_type = 'voice'
		  AND status = 'active'
		LIMIT 1`,
		phoneNumber).Scan(&businessID)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.BusinessContext{}, session.ErrBusinessNotFound
	}
	if err != nil {
		return session.BusinessContext{}, fmt.Errorf("lookup phone endpoint: %w", err)
	}

	bc := session.BusinessContext{BusinessID: businessID}

	err = d.pool.QueryRow(ctx, `
		SELECT name,
		       COALESCE(industry, ''),
		       COALESCE(tone, ''),
		       COALESCE(default_language, '')
		FROM businesses
		WHERE id = $1
		LIMIT 1`,
		businessID).Scan(&bc.Profile.Name, &bc.Profile.Industry, &bc.Profile.Tone, &bc.Profile.DefaultLanguage)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.BusinessContext{}, session.ErrBusinessNotFound
	}
	if err != nil {
		return session.BusinessContext{}, fmt.Errorf("load business %s: %w", businessID, err)
	}

	var rawConfig []byte
	err = d.pool.QueryRow(ctx, `
		SELECT config
		FROM business_configs
		WHERE business_id = $1
		LIMIT 1`,
		businessID).Scan(&rawConfig)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return session.BusinessContext{}, fmt.Errorf("load business config %s: %w", businessID, err)
	}
	if len(rawConfig) > 0 {
		bc.Config = parseConfig(businessID, rawConfig)
	}

	err = d.pool.QueryRow(ctx, `
		SELECT system_prompt
		FROM business_prompts
		WHERE business_id = $1
		LIMIT 1`,
		businessID).Scan(&bc.SystemPrompt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return session.BusinessContext{}, fmt.Errorf("load business prompt %s: %w", businessID, err)
	}

	return bc, nil
}

// parseConfig decodes the stored blob. A malformed document falls back
// to an empty config rather than rejecting the call.
func parseConfig(businessID string, raw []byte) session.BusinessConfig {
	var doc configDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		logging.WithComponent("directory").Warn().
			Err(err).
			Str("businessId", businessID).
			Msg("Malformed business config, using defaults")
		return session.BusinessConfig{}
	}

	cfg := session.BusinessConfig{
		Voice: session.VoiceProfile{
			Voice:    doc.Voice.Voice,
			Language: doc.Voice.Language,
		},
		ForwardingNumber: doc.ForwardingNumber,
		BookingRules:     doc.BookingRules,
	}

	if len(doc.Hours) > 0 {
		cfg.Hours = make(map[string][]session.ServicePeriod, len(doc.Hours))
		for day, periods := range doc.Hours {
			for _, p := range periods {
				cfg.Hours[day] = append(cfg.Hours[day], session.ServicePeriod{Open: p.Open, Close: p.Close})
			}
		}
	}
	for _, s := range doc.Services {
		cfg.Services = append(cfg.Services, session.Service{
			Name:            s.Name,
			DurationMinutes: s.DurationMinutes,
		})
	}
	return cfg
}
