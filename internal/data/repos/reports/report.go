package reports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/navincodesalot/moonshot/internal/data/db"
	types "github.com/navincodesalot/moonshot/internal/domain/reports"
	"github.com/navincodesalot/moonshot/internal/platform/dbctx"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
)

type ReportRepo interface {
	Create(dbc dbctx.Context, report *types.Report) (*types.Report, error)
	GetByID(dbc dbctx.Context, id string) (*types.Report, error)
	Update(dbc dbctx.Context, id string, patch types.Patch) (*types.Report, error)
	// Transition applies patch only while the report is in one of from, or in an
	// in-flight status last touched before staleBefore. Otherwise it returns
	// types.ErrTransitionRejected.
	Transition(dbc dbctx.Context, id string, from []types.Status, staleBefore time.Time, patch types.Patch) (*types.Report, error)
	Delete(dbc dbctx.Context, id string) error
	List(dbc dbctx.Context, page, pageSize int) ([]*types.Report, int64, error)
	Ping(ctx context.Context) error
}

type reportRepo struct {
	provider *db.Provider
	log      *logger.Logger
	now      func() time.Time
}

func NewReportRepo(provider *db.Provider, baseLog *logger.Logger) ReportRepo {
	return &reportRepo{
		provider: provider,
		log:      baseLog.With("repo", "ReportRepo"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *reportRepo) handle(dbc dbctx.Context) (*gorm.DB, error) {
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(ctx), nil
	}
	conn, err := r.provider.DB(ctx)
	if err != nil {
		return nil, err
	}
	return conn.WithContext(ctx), nil
}

func (r *reportRepo) Create(dbc dbctx.Context, report *types.Report) (*types.Report, error) {
	transaction, err := r.handle(dbc)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, errors.New("report required")
	}
	now := r.now()
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	report.Status = types.StatusUploaded
	report.CreatedAt = now
	report.UpdatedAt = now
	if err := transaction.Create(report).Error; err != nil {
		return nil, db.Classify(err)
	}
	return report, nil
}

func (r *reportRepo) GetByID(dbc dbctx.Context, id string) (*types.Report, error) {
	reportID, ok := types.ParseID(id)
	if !ok {
		return nil, types.ErrNotFound
	}
	transaction, err := r.handle(dbc)
	if err != nil {
		return nil, err
	}
	return r.load(transaction, reportID)
}

func (r *reportRepo) load(transaction *gorm.DB, id uuid.UUID) (*types.Report, error) {
	var out types.Report
	err := transaction.Where("id = ?", id).Limit(1).Find(&out).Error
	if err != nil {
		return nil, db.Classify(err)
	}
	if out.ID == uuid.Nil {
		return nil, types.ErrNotFound
	}
	return &out, nil
}

func (r *reportRepo) Update(dbc dbctx.Context, id string, patch types.Patch) (*types.Report, error) {
	reportID, ok := types.ParseID(id)
	if !ok {
		return nil, types.ErrNotFound
	}
	transaction, err := r.handle(dbc)
	if err != nil {
		return nil, err
	}
	var out *types.Report
	err = transaction.Transaction(func(txx *gorm.DB) error {
		res := txx.Model(&types.Report{}).
			Where("id = ?", reportID).
			Updates(patch.Columns(r.now()))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return types.ErrNotFound
		}
		out, err = r.load(txx, reportID)
		return err
	})
	if err != nil {
		return nil, db.Classify(err)
	}
	return out, nil
}

func (r *reportRepo) Transition(dbc dbctx.Context, id string, from []types.Status, staleBefore time.Time, patch types.Patch) (*types.Report, error) {
	reportID, ok := types.ParseID(id)
	if !ok {
		return nil, types.ErrNotFound
	}
	transaction, err := r.handle(dbc)
	if err != nil {
		return nil, err
	}
	var out *types.Report
	err = transaction.Transaction(func(txx *gorm.DB) error {
		q := txx.Model(&types.Report{}).Where("id = ?", reportID)
		if staleBefore.IsZero() {
			q = q.Where("status IN ?", from)
		} else {
			q = q.Where(
				"(status IN ? OR (status IN ? AND updated_at < ?))",
				from,
				[]types.Status{types.StatusAnalyzing, types.StatusProcessing},
				staleBefore,
			)
		}
		res := q.Updates(patch.Columns(r.now()))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if _, lErr := r.load(txx, reportID); lErr != nil {
				return lErr
			}
			return types.ErrTransitionRejected
		}
		out, err = r.load(txx, reportID)
		return err
	})
	if err != nil {
		return nil, db.Classify(err)
	}
	return out, nil
}

func (r *reportRepo) Delete(dbc dbctx.Context, id string) error {
	reportID, ok := types.ParseID(id)
	if !ok {
		return types.ErrNotFound
	}
	transaction, err := r.handle(dbc)
	if err != nil {
		return err
	}
	res := transaction.Where("id = ?", reportID).Delete(&types.Report{})
	if res.Error != nil {
		return db.Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *reportRepo) List(dbc dbctx.Context, page, pageSize int) ([]*types.Report, int64, error) {
	transaction, err := r.handle(dbc)
	if err != nil {
		return nil, 0, err
	}
	page, pageSize = types.NormalizePage(page, pageSize)

	var total int64
	if err := transaction.Model(&types.Report{}).Count(&total).Error; err != nil {
		return nil, 0, db.Classify(err)
	}
	out := []*types.Report{}
	err = transaction.
		Omit("raw_summary").
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&out).Error
	if err != nil {
		return nil, 0, db.Classify(err)
	}
	return out, total, nil
}

func (r *reportRepo) Ping(ctx context.Context) error {
	conn, err := r.provider.DB(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return db.Classify(sqlDB.PingContext(ctx))
}
