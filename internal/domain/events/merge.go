package events

// MergeFields computes the field-level update an existing event should
// receive from a candidate. A field is overwritten when the candidate has a
// value, and:
//
//   - the stored value is empty, or
//   - for Description, the candidate is strictly longer, or
//   - for EventType, the stored value is the generic "event" and the
//     candidate is more specific, or
//   - for URL, ImageURL, times, locations, and registration fields, the
//     candidate simply differs.
//
// Title and StartDate are never merged: they are dedup keys, and changing
// them would re-identify the event. Returns the params, the list of changed
// field names, and whether anything changed.
func MergeFields(existing *Event, c Candidate) (UpdateParams, []string, bool) {
	var params UpdateParams
	var changed []string

	if c.Description != "" {
		if existing.Description == "" || len(c.Description) > len(existing.Description) {
			params.Description = &c.Description
			changed = append(changed, "description")
		}
	}

	if c.EventType != "" && c.EventType != TypeEvent && existing.EventType == TypeEvent {
		params.EventType = &c.EventType
		changed = append(changed, "event_type")
	}

	if c.URL != "" && c.URL != existing.URL {
		params.URL = &c.URL
		changed = append(changed, "url")
	}
	if c.ImageURL != "" && c.ImageURL != existing.ImageURL {
		params.ImageURL = &c.ImageURL
		changed = append(changed, "image_url")
	}

	if c.StartTime != nil && differs(existing.StartTime, *c.StartTime) {
		params.StartTime = c.StartTime
		changed = append(changed, "start_time")
	}
	if c.EndTime != nil && differs(existing.EndTime, *c.EndTime) {
		params.EndTime = c.EndTime
		changed = append(changed, "end_time")
	}
	if c.EndDate != nil && (existing.EndDate == nil || !existing.EndDate.Equal(*c.EndDate)) {
		params.EndDate = c.EndDate
		changed = append(changed, "end_date")
	}

	if c.StartLocation != "" && c.StartLocation != existing.StartLocation {
		params.StartLocation = &c.StartLocation
		changed = append(changed, "start_location")
	}
	if c.EndLocation != "" && c.EndLocation != existing.EndLocation {
		params.EndLocation = &c.EndLocation
		changed = append(changed, "end_location")
	}

	if c.RegistrationRequired != nil && *c.RegistrationRequired != existing.RegistrationRequired {
		params.RegistrationRequired = c.RegistrationRequired
		changed = append(changed, "registration_required")
	}
	if c.RegistrationURL != "" && c.RegistrationURL != existing.RegistrationURL {
		params.RegistrationURL = &c.RegistrationURL
		changed = append(changed, "registration_url")
	}

	if c.IsOnline != nil && *c.IsOnline != existing.IsOnline {
		params.IsOnline = c.IsOnline
		changed = append(changed, "is_online")
	}

	if c.TypeDetails != nil && existing.TypeDetails == nil {
		params.TypeDetails = c.TypeDetails
		changed = append(changed, "type_details")
	}

	return params, changed, len(changed) > 0
}

func differs(stored *string, candidate string) bool {
	return stored == nil || *stored != candidate
}
