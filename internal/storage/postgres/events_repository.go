package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citylore/server/internal/domain/events"
)

type EventRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ events.Repository = (*EventRepository)(nil)

func (r *EventRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

const eventColumns = `id, ulid, title, event_type, start_date, end_date,
       start_time, end_time, description, url, image_url, start_location,
       end_location, registration_required, registration_url, is_online,
       is_baby_friendly, is_permanent, language, venue_id, city_id,
       source_name, source_url, type_details, created_at, updated_at`

type eventRow struct {
	events.Event
	detailsJSON []byte
}

func (row *eventRow) fields() []any {
	return []any{
		&row.ID, &row.ULID, &row.Title, &row.EventType, &row.StartDate,
		&row.EndDate, &row.StartTime, &row.EndTime, &row.Description,
		&row.URL, &row.ImageURL, &row.StartLocation, &row.EndLocation,
		&row.RegistrationRequired, &row.RegistrationURL, &row.IsOnline,
		&row.IsBabyFriendly, &row.IsPermanent, &row.Language, &row.VenueID,
		&row.CityID, &row.SourceName, &row.SourceURL, &row.detailsJSON,
		&row.CreatedAt, &row.UpdatedAt,
	}
}

func (row *eventRow) event() (*events.Event, error) {
	e := row.Event
	if len(row.detailsJSON) > 0 {
		var details events.TypeDetails
		if err := json.Unmarshal(row.detailsJSON, &details); err != nil {
			return nil, fmt.Errorf("decode type_details: %w", err)
		}
		e.TypeDetails = &details
	}
	return &e, nil
}

func scanEvent(row pgx.Row) (*events.Event, error) {
	var er eventRow
	if err := row.Scan(er.fields()...); err != nil {
		return nil, err
	}
	return er.event()
}

func (r *EventRepository) GetByID(ctx context.Context, id int64) (*events.Event, error) {
	event, err := scanEvent(r.queryer().QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, events.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func (r *EventRepository) GetByULID(ctx context.Context, ulid string) (*events.Event, error) {
	event, err := scanEvent(r.queryer().QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE ulid = $1`, ulid))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, events.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event by ulid: %w", err)
	}
	return event, nil
}

// List applies the public read filters. Start/End form a closed date
// window already resolved in the city's timezone; exhibitions match by
// interval overlap, everything else by start_date containment.
func (r *EventRepository) List(ctx context.Context, filters events.Filters) ([]events.Event, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT `+eventColumns+`
  FROM events
 WHERE ($1::bigint IS NULL OR city_id = $1)
   AND ($2::bigint IS NULL OR venue_id = $2)
   AND ($3 = '' OR event_type = $3)
   AND (
     $4::date IS NULL OR $5::date IS NULL
     OR (event_type = 'exhibition'
         AND start_date <= $5::date
         AND COALESCE(end_date, start_date) >= $4::date)
     OR (event_type <> 'exhibition'
         AND start_date BETWEEN $4::date AND $5::date)
   )
 ORDER BY start_date ASC, start_time ASC NULLS LAST, id ASC
`, filters.CityID, filters.VenueID, filters.EventType, filters.Start, filters.End)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// FindByURL matches either spelling of the URL (with or without trailing
// slash) guarded by type, city, and start date. (nil, nil) means no match.
func (r *EventRepository) FindByURL(ctx context.Context, match events.URLMatch) (*events.Event, error) {
	event, err := scanEvent(r.queryer().QueryRow(ctx, `
SELECT `+eventColumns+`
  FROM events
 WHERE url IN ($1, $2)
   AND event_type = $3
   AND ($4::bigint IS NULL OR city_id = $4)
   AND start_date = $5
 ORDER BY id ASC
 LIMIT 1
`, match.URL, match.AltURL, match.EventType, match.CityID, match.StartDate))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find event by url: %w", err)
	}
	return event, nil
}

// FindExhibitionBySharedWebsite coalesces exhibitions listed under several
// venue records that share a website.
func (r *EventRepository) FindExhibitionBySharedWebsite(ctx context.Context, match events.SharedWebsiteMatch) (*events.Event, error) {
	event, err := scanEvent(r.queryer().QueryRow(ctx, `
SELECT `+eventColumnsPrefixed("e")+`
  FROM events e
  JOIN venues v ON v.id = e.venue_id
 WHERE e.title = $1
   AND e.event_type = 'exhibition'
   AND lower(v.website) = lower($2)
   AND ($3::bigint IS NULL OR e.city_id = $3)
   AND e.start_date = $4
 ORDER BY e.id ASC
 LIMIT 1
`, match.Title, match.Website, match.CityID, match.StartDate))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find exhibition by shared website: %w", err)
	}
	return event, nil
}

func (r *EventRepository) FindByTitleVenueDate(ctx context.Context, match events.TitleVenueMatch) (*events.Event, error) {
	event, err := scanEvent(r.queryer().QueryRow(ctx, `
SELECT `+eventColumns+`
  FROM events
 WHERE title = $1
   AND venue_id = $2
   AND ($3::bigint IS NULL OR city_id = $3)
   AND start_date = $4
 ORDER BY id ASC
 LIMIT 1
`, match.Title, match.VenueID, match.CityID, match.StartDate))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find event by title and venue: %w", err)
	}
	return event, nil
}

func (r *EventRepository) FindByTitleCityDate(ctx context.Context, match events.TitleCityMatch) (*events.Event, error) {
	// City-only matching is reserved for venue-less rows. An event pinned
	// to a venue must not absorb a venue-less candidate that merely shares
	// its title and date.
	event, err := scanEvent(r.queryer().QueryRow(ctx, `
SELECT `+eventColumns+`
  FROM events
 WHERE title = $1
   AND city_id = $2
   AND venue_id IS NULL
   AND start_date = $3
 ORDER BY id ASC
 LIMIT 1
`, match.Title, match.CityID, match.StartDate))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find event by title and city: %w", err)
	}
	return event, nil
}

func (r *EventRepository) Insert(ctx context.Context, params events.CreateParams) (*events.Event, error) {
	detailsJSON, err := marshalDetails(params.TypeDetails)
	if err != nil {
		return nil, err
	}

	event, err := scanEvent(r.queryer().QueryRow(ctx, `
INSERT INTO events (
    ulid, title, event_type, start_date, end_date, start_time, end_time,
    description, url, image_url, start_location, end_location,
    registration_required, registration_url, is_online, is_baby_friendly,
    is_permanent, language, venue_id, city_id, source_name, source_url,
    type_details
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
    $17, $18, $19, $20, $21, $22, $23
)
RETURNING `+eventColumns,
		params.ULID, params.Title, params.EventType, params.StartDate,
		params.EndDate, params.StartTime, params.EndTime, params.Description,
		params.URL, params.ImageURL, params.StartLocation, params.EndLocation,
		params.RegistrationRequired, params.RegistrationURL, params.IsOnline,
		params.IsBabyFriendly, params.IsPermanent, params.Language,
		params.VenueID, params.CityID, params.SourceName, params.SourceURL,
		detailsJSON))
	if isUniqueViolation(err) {
		return nil, events.ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

func (r *EventRepository) Update(ctx context.Context, id int64, params events.UpdateParams) error {
	var detailsJSON []byte
	if params.TypeDetails != nil {
		encoded, err := marshalDetails(params.TypeDetails)
		if err != nil {
			return err
		}
		detailsJSON = encoded
	}

	tag, err := r.queryer().Exec(ctx, `
UPDATE events
   SET description = COALESCE($2, description),
       event_type = COALESCE($3, event_type),
       url = COALESCE($4, url),
       image_url = COALESCE($5, image_url),
       start_time = COALESCE($6, start_time),
       end_time = COALESCE($7, end_time),
       end_date = COALESCE($8, end_date),
       start_location = COALESCE($9, start_location),
       end_location = COALESCE($10, end_location),
       registration_required = COALESCE($11, registration_required),
       registration_url = COALESCE($12, registration_url),
       is_online = COALESCE($13, is_online),
       is_baby_friendly = COALESCE($14, is_baby_friendly),
       type_details = COALESCE($15, type_details),
       updated_at = NOW()
 WHERE id = $1
`, id, params.Description, params.EventType, params.URL, params.ImageURL,
		params.StartTime, params.EndTime, params.EndDate,
		params.StartLocation, params.EndLocation,
		params.RegistrationRequired, params.RegistrationURL,
		params.IsOnline, params.IsBabyFriendly, detailsJSON)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

func (r *EventRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

// ListByVenueTitles reads back persisted rows for a committed batch so the
// dispatcher can emit them on the progress channel.
func (r *EventRepository) ListByVenueTitles(ctx context.Context, venueID int64, titles []string) ([]events.Event, error) {
	if len(titles) == 0 {
		return nil, nil
	}
	rows, err := r.queryer().Query(ctx, `
SELECT `+eventColumns+`
  FROM events
 WHERE venue_id = $1
   AND title = ANY($2)
 ORDER BY start_date ASC, id ASC
`, venueID, titles)
	if err != nil {
		return nil, fmt.Errorf("list events by venue titles: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// DeletePast removes non-permanent events that ended before today. Events
// without an end date are judged by start date.
func (r *EventRepository) DeletePast(ctx context.Context, today time.Time) (int64, error) {
	tag, err := r.queryer().Exec(ctx, `
DELETE FROM events
 WHERE NOT is_permanent
   AND COALESCE(end_date, start_date) < $1::date
`, today)
	if err != nil {
		return 0, fmt.Errorf("delete past events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectEvents(rows pgx.Rows) ([]events.Event, error) {
	var items []events.Event
	for rows.Next() {
		var er eventRow
		if err := rows.Scan(er.fields()...); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event, err := er.event()
		if err != nil {
			return nil, err
		}
		items = append(items, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return items, nil
}

func marshalDetails(details *events.TypeDetails) ([]byte, error) {
	if details == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("encode type_details: %w", err)
	}
	return encoded, nil
}

// eventColumnsPrefixed qualifies the column list with a table alias for
// joined queries.
func eventColumnsPrefixed(alias string) string {
	return alias + `.id, ` + alias + `.ulid, ` + alias + `.title, ` +
		alias + `.event_type, ` + alias + `.start_date, ` + alias + `.end_date, ` +
		alias + `.start_time, ` + alias + `.end_time, ` + alias + `.description, ` +
		alias + `.url, ` + alias + `.image_url, ` + alias + `.start_location, ` +
		alias + `.end_location, ` + alias + `.registration_required, ` +
		alias + `.registration_url, ` + alias + `.is_online, ` +
		alias + `.is_baby_friendly, ` + alias + `.is_permanent, ` +
		alias + `.language, ` + alias + `.venue_id, ` + alias + `.city_id, ` +
		alias + `.source_name, ` + alias + `.source_url, ` +
		alias + `.type_details, ` + alias + `.created_at, ` + alias + `.updated_at`
}
