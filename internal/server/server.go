package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"certline/internal/domain"
	"certline/internal/engine"
	"certline/internal/repo"
	"certline/internal/schedule"
	"certline/internal/standards"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Logger   *slog.Logger
	// Context stops background work such as webhook delivery.
	Context context.Context
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"ineligible_save"`
	Message string         `json:"message" example:"item EIC-10 marked fail requires notes"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"item_code\":\"EIC-10\"}"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Certline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// schema validation errors are 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newActorMiddleware())
	router.Use(newRequestLogger(logger))
	hcfg := huma.DefaultConfig("Certline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStandards(group, cfg.Engine)
	registerValidate(group, cfg.Engine)
	registerTests(group, cfg.Engine)
	registerCircuits(group, cfg.Engine)
	registerInspection(group, cfg.Engine)
	registerTemplates(group)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	startWebhookDispatcher(ctx, cfg.Engine, logger)
	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	var codeErr *schedule.ItemCodeError
	if errors.As(err, &codeErr) {
		return newAPIError(http.StatusBadRequest, "invalid_item_code", msg, map[string]any{
			"item_code":        codeErr.Code,
			"certificate_type": codeErr.CertificateType,
		})
	}
	var saveErr *schedule.IneligibleSaveError
	if errors.As(err, &saveErr) {
		return newAPIError(http.StatusUnprocessableEntity, "ineligible_save", msg, map[string]any{
			"item_code": saveErr.Code,
			"result":    saveErr.Result,
		})
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, engine.ErrTestComplete):
		return newAPIError(http.StatusConflict, "test_complete", msg, nil)
	case errors.Is(err, engine.ErrCertificateIneligible):
		return newAPIError(http.StatusUnprocessableEntity, "certificate_ineligible", msg, nil)
	case errors.Is(err, engine.ErrNotNumeric):
		return newAPIError(http.StatusBadRequest, "not_numeric", msg, nil)
	case errors.Is(err, schedule.ErrInvalidResult):
		return newAPIError(http.StatusBadRequest, "invalid_result", msg, nil)
	case errors.Is(err, schedule.ErrUnknownCertificateType):
		return newAPIError(http.StatusBadRequest, "unknown_certificate_type", msg, nil)
	case errors.Is(err, standards.ErrInvalidStandard), errors.Is(err, standards.ErrDuplicateKey):
		return newAPIError(http.StatusBadRequest, "invalid_standard", msg, nil)
	case errors.Is(err, engine.ErrInvalidInput):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		slog.Error("unhandled api error", "error", err)
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Certline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Send X-Actor-Id to attribute changes in the event log.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStandards(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-standards",
		Method:      http.MethodGet,
		Path:        "/standards",
		Summary:     "List measurement standards",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		MeasurementType string `query:"measurement_type"`
	}) (*struct {
		Body StandardsResponse `json:"body"`
	}, error) {
		items, err := e.ListStandards(ctx, domain.MeasurementType(input.MeasurementType))
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.MeasurementStandard{}
		}
		return &struct {
			Body StandardsResponse `json:"body"`
		}{Body: StandardsResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "lookup-standard",
		Method:      http.MethodGet,
		Path:        "/standards/lookup",
		Summary:     "Find the standard that applies to a reading",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		MeasurementType string `query:"measurement_type" required:"true"`
		CircuitType     string `query:"circuit_type"`
		CircuitRating   string `query:"circuit_rating"`
	}) (*struct {
		Body StandardLookupResponse `json:"body"`
	}, error) {
		std, err := e.LookupStandard(ctx, domain.MeasurementType(input.MeasurementType), input.CircuitType, input.CircuitRating)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StandardLookupResponse `json:"body"`
		}{Body: StandardLookupResponse{Found: std != nil, Standard: std}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-standards",
		Method:      http.MethodPut,
		Path:        "/standards",
		Summary:     "Replace the standards table",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ImportStandardsRequest `json:"body"`
	}) (*struct {
		Body ImportStandardsResponse `json:"body"`
	}, error) {
		cat, err := standards.NewCatalog(input.Body.Standards)
		if err != nil {
			return nil, handleError(err)
		}
		n, err := e.ImportStandards(ctx, cat, "api", actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ImportStandardsResponse `json:"body"`
		}{Body: ImportStandardsResponse{Imported: n}}, nil
	})
}

func registerValidate(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "validate-reading",
		Method:      http.MethodPost,
		Path:        "/validate",
		Summary:     "Validate a single reading without storing it",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ValidateRequest `json:"body"`
	}) (*struct {
		Body domain.ValidationResult `json:"body"`
	}, error) {
		res, err := e.ValidateReading(ctx, engine.ValidateOptions{
			Type:          domain.MeasurementType(input.Body.MeasurementType),
			Value:         input.Body.Value,
			CircuitType:   input.Body.CircuitType,
			CircuitRating: input.Body.CircuitRating,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ValidationResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerTests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-test",
		Method:        http.MethodPost,
		Path:          "/tests",
		Summary:       "Create electrical test",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateTestRequest `json:"body"`
	}) (*struct {
		Body domain.ElectricalTest `json:"body"`
	}, error) {
		t, err := e.CreateTest(ctx, engine.TestCreateOptions{
			ID:              input.Body.ID,
			CertificateType: domain.CertificateType(input.Body.CertificateType),
			Site:            input.Body.Site,
			ActorID:         actorIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ElectricalTest `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tests",
		Method:      http.MethodGet,
		Path:        "/tests",
		Summary:     "List electrical tests",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status          string `query:"status" enum:"in_progress,complete"`
		CertificateType string `query:"certificate_type" enum:"eic,minor_works,eicr,pat"`
		Limit           int    `query:"limit" default:"50"`
	}) (*struct {
		Body TestListResponse `json:"body"`
	}, error) {
		items, err := e.ListTests(ctx, repo.TestFilters{
			Status:          input.Status,
			CertificateType: domain.CertificateType(input.CertificateType),
			Limit:           normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.ElectricalTest{}
		}
		return &struct {
			Body TestListResponse `json:"body"`
		}{Body: TestListResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-test",
		Method:      http.MethodGet,
		Path:        "/tests/{id}",
		Summary:     "Get electrical test with its circuits",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TestDetailResponse `json:"body"`
	}, error) {
		t, err := e.GetTest(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		circuits, err := e.ListCircuits(ctx, t.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if circuits == nil {
			circuits = []domain.Circuit{}
		}
		return &struct {
			Body TestDetailResponse `json:"body"`
		}{Body: TestDetailResponse{ElectricalTest: t, Circuits: circuits}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-test",
		Method:      http.MethodPost,
		Path:        "/tests/{id}/complete",
		Summary:     "Complete a test once the schedule is eligible",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.ElectricalTest `json:"body"`
	}, error) {
		t, err := e.CompleteTest(ctx, input.ID, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ElectricalTest `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "certificate-status",
		Method:      http.MethodGet,
		Path:        "/tests/{id}/certificate",
		Summary:     "Certificate eligibility and progress",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body certificateResponse `json:"body"`
	}, error) {
		sum, err := e.CertificateStatus(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body certificateResponse `json:"body"`
		}{Body: sum}, nil
	})
}

func registerCircuits(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-circuit",
		Method:        http.MethodPost,
		Path:          "/tests/{id}/circuits",
		Summary:       "Add circuit to a test",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body CreateCircuitRequest `json:"body"`
	}) (*struct {
		Body domain.Circuit `json:"body"`
	}, error) {
		c, err := e.AddCircuit(ctx, engine.CircuitCreateOptions{
			TestID:                  input.ID,
			Ref:                     input.Body.Ref,
			Description:             input.Body.Description,
			CircuitType:             input.Body.CircuitType,
			OvercurrentDeviceType:   input.Body.OvercurrentDeviceType,
			OvercurrentDeviceRating: input.Body.OvercurrentDeviceRating,
			ActorID:                 actorIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Circuit `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-circuits",
		Method:      http.MethodGet,
		Path:        "/tests/{id}/circuits",
		Summary:     "List circuits of a test",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body CircuitListResponse `json:"body"`
	}, error) {
		items, err := e.ListCircuits(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Circuit{}
		}
		return &struct {
			Body CircuitListResponse `json:"body"`
		}{Body: CircuitListResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-readings",
		Method:      http.MethodPost,
		Path:        "/tests/{id}/circuits/{circuit_id}/readings",
		Summary:     "Validate and store readings for a circuit",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID        string                `path:"id"`
		CircuitID string                `path:"circuit_id"`
		Body      RecordReadingsRequest `json:"body"`
	}) (*struct {
		Body readingsResponse `json:"body"`
	}, error) {
		if len(input.Body.Readings) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "readings required", nil)
		}
		res, err := e.RecordReadings(ctx, input.ID, input.CircuitID, toReadings(input.Body.Readings), actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body readingsResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-measurements",
		Method:      http.MethodGet,
		Path:        "/tests/{id}/measurements",
		Summary:     "List stored measurements",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID        string `path:"id"`
		CircuitID string `query:"circuit_id"`
		Status    string `query:"status" enum:"pass,warning,fail,unknown"`
	}) (*struct {
		Body MeasurementListResponse `json:"body"`
	}, error) {
		items, err := e.ListMeasurements(ctx, repo.MeasurementFilters{
			TestID:    input.ID,
			CircuitID: input.CircuitID,
			Status:    domain.ValidationStatus(input.Status),
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Measurement{}
		}
		return &struct {
			Body MeasurementListResponse `json:"body"`
		}{Body: MeasurementListResponse{Items: items}}, nil
	})
}

func registerInspection(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "start-inspection",
		Method:      http.MethodPost,
		Path:        "/tests/{id}/inspection",
		Summary:     "Initialise the inspection schedule",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body checklistResponse `json:"body"`
	}, error) {
		view, err := e.StartInspection(ctx, input.ID, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body checklistResponse `json:"body"`
		}{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-inspection",
		Method:      http.MethodGet,
		Path:        "/tests/{id}/inspection",
		Summary:     "Get the inspection checklist with progress",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body checklistResponse `json:"body"`
	}, error) {
		view, err := e.GetChecklist(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body checklistResponse `json:"body"`
		}{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-inspection-item",
		Method:      http.MethodPatch,
		Path:        "/tests/{id}/inspection/items/{code}",
		Summary:     "Update and save one inspection item",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Code string         `path:"code"`
		Body SetItemRequest `json:"body"`
	}) (*struct {
		Body domain.InspectionItem `json:"body"`
	}, error) {
		it, err := e.SetItem(ctx, input.ID, toItemUpdate(input.Code, input.Body.Result, input.Body.Notes), actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.InspectionItem `json:"body"`
		}{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-inspection",
		Method:      http.MethodPost,
		Path:        "/tests/{id}/inspection/save",
		Summary:     "Save a batch of inspection items",
		Description: "Each item is gated on its own; rejected items are listed in failures and do not stop the rest.",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body SaveItemsRequest `json:"body"`
	}) (*struct {
		Body schedule.BatchReport `json:"body"`
	}, error) {
		report, err := e.SaveItems(ctx, input.ID, toItemUpdates(input.Body.Items), actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body schedule.BatchReport `json:"body"`
		}{Body: report}, nil
	})
}

func registerTemplates(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-template",
		Method:      http.MethodGet,
		Path:        "/templates/{certificate_type}",
		Summary:     "Inspection schedule template for a certificate type",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CertificateType string `path:"certificate_type"`
	}) (*struct {
		Body TemplateResponse `json:"body"`
	}, error) {
		c, err := schedule.Initialize(domain.CertificateType(input.CertificateType), nil)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TemplateResponse `json:"body"`
		}{Body: TemplateResponse{CertificateType: c.CertificateType, Items: c.Items, Categories: c.GroupByCategory()}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		TestID     string `query:"test_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"test,circuit,inspection_item,standards"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEvents(ctx, repo.EventFilters{
			TestID:     input.TestID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     cursorID,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
