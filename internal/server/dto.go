package server

import (
	"encoding/json"

	"certline/internal/domain"
	"certline/internal/engine"
	"certline/internal/schedule"
)

// Request payloads

type CreateTestRequest struct {
	ID              string `json:"id,omitempty"`
	CertificateType string `json:"certificate_type" enum:"eic,minor_works,eicr,pat"`
	Site            string `json:"site,omitempty"`
}

type CreateCircuitRequest struct {
	Ref                     string `json:"ref" minLength:"1"`
	Description             string `json:"description,omitempty"`
	CircuitType             string `json:"circuit_type,omitempty" example:"ring_final"`
	OvercurrentDeviceType   string `json:"overcurrent_device_type,omitempty" example:"B"`
	OvercurrentDeviceRating string `json:"overcurrent_device_rating,omitempty" example:"32A"`
}

type RecordReadingsRequest struct {
	// Readings maps measurement type to the value as entered; blank entries are skipped.
	Readings map[string]string `json:"readings" example:"{\"continuity\":\"0.35\",\"insulation\":\"250\"}"`
}

type ValidateRequest struct {
	MeasurementType string  `json:"measurement_type" enum:"continuity,insulation,earth_loop,polarity,rcd_trip_time,voltage,functional"`
	Value           float64 `json:"value"`
	CircuitType     string  `json:"circuit_type,omitempty"`
	CircuitRating   string  `json:"circuit_rating,omitempty"`
}

// ItemUpdateRequest carries a result as free text so a bad value in one
// item of a batch is reported per item instead of failing the request.
type ItemUpdateRequest struct {
	ItemCode string  `json:"item_code"`
	Result   *string `json:"result,omitempty" example:"pass"`
	Notes    *string `json:"notes,omitempty"`
}

type SetItemRequest struct {
	Result *string `json:"result,omitempty" example:"fail"`
	Notes  *string `json:"notes,omitempty"`
}

type SaveItemsRequest struct {
	// Items to update; empty re-checks every inspected item.
	Items []ItemUpdateRequest `json:"items,omitempty"`
}

type ImportStandardsRequest struct {
	Standards []domain.MeasurementStandard `json:"standards"`
}

// Response payloads

type TestDetailResponse struct {
	domain.ElectricalTest
	Circuits []domain.Circuit `json:"circuits"`
}

type TestListResponse struct {
	Items []domain.ElectricalTest `json:"items"`
}

type CircuitListResponse struct {
	Items []domain.Circuit `json:"items"`
}

type MeasurementListResponse struct {
	Items []domain.Measurement `json:"items"`
}

type StandardsResponse struct {
	Items []domain.MeasurementStandard `json:"items"`
}

type StandardLookupResponse struct {
	Found    bool                        `json:"found"`
	Standard *domain.MeasurementStandard `json:"standard,omitempty"`
}

type ImportStandardsResponse struct {
	Imported int `json:"imported"`
}

type TemplateResponse struct {
	CertificateType domain.CertificateType   `json:"certificate_type"`
	Items           []domain.InspectionItem  `json:"items"`
	Categories      []schedule.CategoryGroup `json:"categories"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	TestID     string         `json:"test_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type (
	checklistResponse   = engine.ChecklistView
	certificateResponse = engine.CertificateSummary
	readingsResponse    = engine.RecordResult
)

// Conversion helpers

func toItemUpdates(in []ItemUpdateRequest) []schedule.ItemUpdate {
	out := make([]schedule.ItemUpdate, 0, len(in))
	for _, u := range in {
		out = append(out, toItemUpdate(u.ItemCode, u.Result, u.Notes))
	}
	return out
}

func toItemUpdate(code string, result, notes *string) schedule.ItemUpdate {
	u := schedule.ItemUpdate{ItemCode: code, Notes: notes}
	if result != nil {
		r := domain.InspectionResult(*result)
		u.Result = &r
	}
	return u
}

func toReadings(in map[string]string) map[domain.MeasurementType]string {
	out := make(map[domain.MeasurementType]string, len(in))
	for k, v := range in {
		out[domain.MeasurementType(k)] = v
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		TestID:     e.TestID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}
