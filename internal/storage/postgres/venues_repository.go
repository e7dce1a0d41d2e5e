package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citylore/server/internal/domain/venues"
)

type VenueRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ venues.Repository = (*VenueRepository)(nil)

func (r *VenueRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

const venueColumns = `id, ulid, name, venue_type, address, lat, lon, website,
       ticketing_url, social_urls, hours, contact, description, city_id,
       additional_info, created_at, updated_at`

type venueRow struct {
	venues.Venue
	socialJSON     []byte
	additionalJSON []byte
}

func (row *venueRow) fields() []any {
	return []any{
		&row.ID, &row.ULID, &row.Name, &row.Type, &row.Address, &row.Lat,
		&row.Lon, &row.Website, &row.TicketingURL, &row.socialJSON,
		&row.Hours, &row.Contact, &row.Description, &row.CityID,
		&row.additionalJSON, &row.CreatedAt, &row.UpdatedAt,
	}
}

func (row *venueRow) venue() (*venues.Venue, error) {
	v := row.Venue
	if len(row.socialJSON) > 0 {
		if err := json.Unmarshal(row.socialJSON, &v.SocialURLs); err != nil {
			return nil, fmt.Errorf("decode social_urls: %w", err)
		}
	}
	if len(row.additionalJSON) > 0 {
		if err := json.Unmarshal(row.additionalJSON, &v.AdditionalInfo); err != nil {
			return nil, fmt.Errorf("decode additional_info: %w", err)
		}
	}
	return &v, nil
}

func scanVenue(row pgx.Row) (*venues.Venue, error) {
	var vr venueRow
	if err := row.Scan(vr.fields()...); err != nil {
		return nil, err
	}
	return vr.venue()
}

func (r *VenueRepository) GetByID(ctx context.Context, id int64) (*venues.Venue, error) {
	venue, err := scanVenue(r.queryer().QueryRow(ctx,
		`SELECT `+venueColumns+` FROM venues WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, venues.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get venue: %w", err)
	}
	return venue, nil
}

func (r *VenueRepository) GetByULID(ctx context.Context, ulid string) (*venues.Venue, error) {
	venue, err := scanVenue(r.queryer().QueryRow(ctx,
		`SELECT `+venueColumns+` FROM venues WHERE ulid = $1`, ulid))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, venues.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get venue by ulid: %w", err)
	}
	return venue, nil
}

func (r *VenueRepository) GetByIDs(ctx context.Context, ids []int64) ([]venues.Venue, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.queryer().Query(ctx,
		`SELECT `+venueColumns+` FROM venues WHERE id = ANY($1) ORDER BY id ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("get venues by ids: %w", err)
	}
	defer rows.Close()
	return collectVenues(rows)
}

func (r *VenueRepository) List(ctx context.Context, filters venues.Filters) ([]venues.Venue, error) {
	var typeArray any
	if len(filters.Types) > 0 {
		typeArray = filters.Types
	}
	rows, err := r.queryer().Query(ctx, `
SELECT `+venueColumns+`
  FROM venues
 WHERE ($1::bigint IS NULL OR city_id = $1)
   AND (coalesce(cardinality($2::text[]), 0) = 0 OR venue_type = ANY($2::text[]))
 ORDER BY updated_at DESC
`, filters.CityID, typeArray)
	if err != nil {
		return nil, fmt.Errorf("list venues: %w", err)
	}
	defer rows.Close()
	return collectVenues(rows)
}

// FindByName is the resolve-or-create probe; (nil, nil) means no match.
func (r *VenueRepository) FindByName(ctx context.Context, name string, cityID int64) (*venues.Venue, error) {
	venue, err := scanVenue(r.queryer().QueryRow(ctx, `
SELECT `+venueColumns+`
  FROM venues
 WHERE lower(name) = lower($1) AND city_id = $2
 ORDER BY id ASC
 LIMIT 1
`, name, cityID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find venue by name: %w", err)
	}
	return venue, nil
}

func (r *VenueRepository) Insert(ctx context.Context, params venues.CreateParams) (*venues.Venue, error) {
	socialJSON, err := json.Marshal(orEmptyMap(params.SocialURLs))
	if err != nil {
		return nil, fmt.Errorf("encode social_urls: %w", err)
	}
	additionalJSON, err := json.Marshal(params.AdditionalInfo)
	if err != nil {
		return nil, fmt.Errorf("encode additional_info: %w", err)
	}

	venue, err := scanVenue(r.queryer().QueryRow(ctx, `
INSERT INTO venues (
    ulid, name, venue_type, address, lat, lon, website, ticketing_url,
    social_urls, hours, contact, description, city_id, additional_info
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING `+venueColumns,
		params.ULID, params.Name, params.Type, params.Address, params.Lat,
		params.Lon, params.Website, params.TicketingURL, socialJSON,
		params.Hours, params.Contact, params.Description, params.CityID,
		additionalJSON))
	if isUniqueViolation(err) {
		return nil, venues.ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert venue: %w", err)
	}
	return venue, nil
}

func (r *VenueRepository) Update(ctx context.Context, id int64, params venues.UpdateParams) error {
	var socialJSON []byte
	if params.SocialURLs != nil {
		encoded, err := json.Marshal(params.SocialURLs)
		if err != nil {
			return fmt.Errorf("encode social_urls: %w", err)
		}
		socialJSON = encoded
	}
	var additionalJSON []byte
	if params.AdditionalInfo != nil {
		encoded, err := json.Marshal(params.AdditionalInfo)
		if err != nil {
			return fmt.Errorf("encode additional_info: %w", err)
		}
		additionalJSON = encoded
	}

	tag, err := r.queryer().Exec(ctx, `
UPDATE venues
   SET name = COALESCE($2, name),
       venue_type = COALESCE($3, venue_type),
       address = COALESCE($4, address),
       lat = COALESCE($5, lat),
       lon = COALESCE($6, lon),
       website = COALESCE($7, website),
       ticketing_url = COALESCE($8, ticketing_url),
       social_urls = COALESCE($9, social_urls),
       hours = COALESCE($10, hours),
       contact = COALESCE($11, contact),
       description = COALESCE($12, description),
       additional_info = COALESCE($13, additional_info),
       updated_at = NOW()
 WHERE id = $1
`, id, params.Name, params.Type, params.Address, params.Lat, params.Lon,
		params.Website, params.TicketingURL, socialJSON, params.Hours,
		params.Contact, params.Description, additionalJSON)
	if isUniqueViolation(err) {
		return venues.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("update venue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return venues.ErrNotFound
	}
	return nil
}

func (r *VenueRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM venues WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete venue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return venues.ErrNotFound
	}
	return nil
}

func (r *VenueRepository) SetCoordinates(ctx context.Context, id int64, lat, lon float64) error {
	tag, err := r.queryer().Exec(ctx,
		`UPDATE venues SET lat = $2, lon = $3, updated_at = NOW() WHERE id = $1`,
		id, lat, lon)
	if err != nil {
		return fmt.Errorf("set venue coordinates: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return venues.ErrNotFound
	}
	return nil
}

func collectVenues(rows pgx.Rows) ([]venues.Venue, error) {
	var items []venues.Venue
	for rows.Next() {
		var vr venueRow
		if err := rows.Scan(vr.fields()...); err != nil {
			return nil, fmt.Errorf("scan venue: %w", err)
		}
		venue, err := vr.venue()
		if err != nil {
			return nil, err
		}
		items = append(items, *venue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate venues: %w", err)
	}
	return items, nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
