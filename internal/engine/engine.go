package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"certline/internal/config"
	"certline/internal/domain"
	"certline/internal/events"
	"certline/internal/repo"
	"certline/internal/schedule"
	"certline/internal/standards"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrTestComplete          = errors.New("test is complete")
	ErrNotNumeric            = errors.New("measurement type is not numeric")
	ErrCertificateIneligible = errors.New("certificate not eligible")
)

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Standards standards.Finder
	Config    *config.Config
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:        db,
		Repo:      r,
		Standards: r,
		Config:    cfg,
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) emit(ctx context.Context, tx *sql.Tx, evtType, testID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, evtType, testID, entityKind, entityID, actorID, payload)
}

func (e Engine) finder() standards.Finder {
	if e.Standards != nil {
		return e.Standards
	}
	return e.Repo
}

type TestCreateOptions struct {
	ID              string
	CertificateType domain.CertificateType
	Site            string
	ActorID         string
}

func (e Engine) CreateTest(ctx context.Context, opts TestCreateOptions) (domain.ElectricalTest, error) {
	if !opts.CertificateType.Valid() {
		return domain.ElectricalTest{}, fmt.Errorf("%w: %q", schedule.ErrUnknownCertificateType, opts.CertificateType)
	}
	now := e.timestamp()
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	t := domain.ElectricalTest{
		ID:              id,
		CertificateType: opts.CertificateType,
		Site:            strings.TrimSpace(opts.Site),
		Status:          domain.TestStatusInProgress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ElectricalTest{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTestTx(ctx, tx, t); err != nil {
		return domain.ElectricalTest{}, fmt.Errorf("insert test: %w", err)
	}
	if err := e.emit(ctx, tx, events.TestCreated, t.ID, "test", t.ID, opts.ActorID, events.EventPayload{
		"certificate_type": t.CertificateType,
		"site":             t.Site,
	}); err != nil {
		return domain.ElectricalTest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ElectricalTest{}, err
	}
	return t, nil
}

func (e Engine) GetTest(ctx context.Context, id string) (domain.ElectricalTest, error) {
	return e.Repo.GetTest(ctx, id)
}

func (e Engine) ListTests(ctx context.Context, f repo.TestFilters) ([]domain.ElectricalTest, error) {
	if f.Status != "" && f.Status != domain.TestStatusInProgress && f.Status != domain.TestStatusComplete {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidInput, f.Status)
	}
	return e.Repo.ListTests(ctx, f)
}

// openTestTx loads a test for mutation, refusing completed ones.
func (e Engine) openTestTx(ctx context.Context, tx *sql.Tx, testID string) (domain.ElectricalTest, error) {
	t, err := e.Repo.GetTestTx(ctx, tx, testID)
	if err != nil {
		return t, err
	}
	if t.Status == domain.TestStatusComplete {
		return t, fmt.Errorf("%w: %s", ErrTestComplete, testID)
	}
	return t, nil
}

// CertificateSummary reports whether a test can be certified.
type CertificateSummary struct {
	TestID              string                          `json:"test_id"`
	CertificateType     domain.CertificateType          `json:"certificate_type"`
	Status              string                          `json:"status"`
	Progress            schedule.Progress               `json:"progress"`
	Eligible            bool                            `json:"eligible"`
	Blocking            []string                        `json:"blocking"`
	Measurements        map[domain.ValidationStatus]int `json:"measurements"`
	FailingMeasurements int                             `json:"failing_measurements"`
}

func (e Engine) CertificateStatus(ctx context.Context, testID string) (CertificateSummary, error) {
	t, err := e.Repo.GetTest(ctx, testID)
	if err != nil {
		return CertificateSummary{}, err
	}
	stored, err := e.Repo.ListInspectionItems(ctx, testID)
	if err != nil {
		return CertificateSummary{}, err
	}
	c, err := schedule.Initialize(t.CertificateType, stored)
	if err != nil {
		return CertificateSummary{}, err
	}
	counts, err := e.Repo.CountMeasurementsByStatus(ctx, testID)
	if err != nil {
		return CertificateSummary{}, err
	}
	ok, blocking := c.CertificateEligible()
	if blocking == nil {
		blocking = []string{}
	}
	return CertificateSummary{
		TestID:              t.ID,
		CertificateType:     t.CertificateType,
		Status:              t.Status,
		Progress:            c.Progress(),
		Eligible:            ok,
		Blocking:            blocking,
		Measurements:        counts,
		FailingMeasurements: counts[domain.StatusFail],
	}, nil
}

// CompleteTest locks a test once every schedule item passes the save gate.
func (e Engine) CompleteTest(ctx context.Context, testID, actorID string) (domain.ElectricalTest, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ElectricalTest{}, err
	}
	defer tx.Rollback()
	t, err := e.openTestTx(ctx, tx, testID)
	if err != nil {
		return t, err
	}
	stored, err := e.Repo.ListInspectionItemsTx(ctx, tx, testID)
	if err != nil {
		return t, err
	}
	c, err := schedule.Initialize(t.CertificateType, stored)
	if err != nil {
		return t, err
	}
	if ok, blocking := c.CertificateEligible(); !ok {
		return t, fmt.Errorf("%w: %d item(s) blocking: %s", ErrCertificateIneligible, len(blocking), strings.Join(blocking, ", "))
	}
	now := e.timestamp()
	if err := e.Repo.UpdateTestStatusTx(ctx, tx, t.ID, domain.TestStatusComplete, now, &now); err != nil {
		return t, err
	}
	p := c.Progress()
	if err := e.emit(ctx, tx, events.TestCompleted, t.ID, "test", t.ID, actorID, events.EventPayload{
		"certificate_type": t.CertificateType,
		"items":            p.Total,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	t.Status = domain.TestStatusComplete
	t.UpdatedAt = now
	t.CompletedAt = &now
	return t, nil
}
