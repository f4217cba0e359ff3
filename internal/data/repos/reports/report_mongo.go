package reports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"gorm.io/datatypes"

	"github.com/navincodesalot/moonshot/internal/data/db"
	types "github.com/navincodesalot/moonshot/internal/domain/reports"
	"github.com/navincodesalot/moonshot/internal/platform/dbctx"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
)

const reportCollection = "reports"

// reportDoc is the stored shape; structuredReport keeps the raw JSON text.
type reportDoc struct {
	ID               string    `bson:"_id"`
	Status           string    `bson:"status"`
	SourceFileRef    string    `bson:"sourceFileRef"`
	VideoFilename    string    `bson:"videoFilename"`
	VideoContentType string    `bson:"videoContentType,omitempty"`
	VideoSizeBytes   int64     `bson:"videoSizeBytes"`
	VideoStorageKey  string    `bson:"videoStorageKey,omitempty"`
	SupervisorNotes  string    `bson:"supervisorNotes"`
	RawSummary       *string   `bson:"rawSummary,omitempty"`
	ReportKind       string    `bson:"reportKind,omitempty"`
	StructuredReport *string   `bson:"structuredReport,omitempty"`
	ProcessingTimeMs *int64    `bson:"processingTimeMs,omitempty"`
	ErrorMessage     *string   `bson:"errorMessage,omitempty"`
	CreatedAt        time.Time `bson:"createdAt"`
	UpdatedAt        time.Time `bson:"updatedAt"`
}

func toDoc(r *types.Report) reportDoc {
	d := reportDoc{
		ID:               r.ID.String(),
		Status:           string(r.Status),
		SourceFileRef:    r.SourceFileRef,
		VideoFilename:    r.VideoFilename,
		VideoContentType: r.VideoContentType,
		VideoSizeBytes:   r.VideoSizeBytes,
		VideoStorageKey:  r.VideoStorageKey,
		SupervisorNotes:  r.SupervisorNotes,
		RawSummary:       r.RawSummary,
		ReportKind:       string(r.ReportKind),
		ProcessingTimeMs: r.ProcessingTimeMs,
		ErrorMessage:     r.ErrorMessage,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if len(r.StructuredReport) > 0 {
		s := string(r.StructuredReport)
		d.StructuredReport = &s
	}
	return d
}

func (d reportDoc) toReport() *types.Report {
	id, _ := uuid.Parse(d.ID)
	r := &types.Report{
		ID:               id,
		Status:           types.Status(d.Status),
		SourceFileRef:    d.SourceFileRef,
		VideoFilename:    d.VideoFilename,
		VideoContentType: d.VideoContentType,
		VideoSizeBytes:   d.VideoSizeBytes,
		VideoStorageKey:  d.VideoStorageKey,
		SupervisorNotes:  d.SupervisorNotes,
		RawSummary:       d.RawSummary,
		ReportKind:       types.Kind(d.ReportKind),
		ProcessingTimeMs: d.ProcessingTimeMs,
		ErrorMessage:     d.ErrorMessage,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
	if d.StructuredReport != nil {
		r.StructuredReport = datatypes.JSON(*d.StructuredReport)
	}
	return r
}

// patchUpdate renders a patch as $set/$unset. A field is never in both.
func patchUpdate(p types.Patch, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	unset := bson.M{}
	if p.ResetRun {
		for _, k := range []string{"rawSummary", "structuredReport", "reportKind", "processingTimeMs", "errorMessage"} {
			unset[k] = ""
		}
	}
	put := func(key string, v interface{}) {
		delete(unset, key)
		set[key] = v
	}
	if p.Status != nil {
		put("status", string(*p.Status))
	}
	if p.SupervisorNotes != nil {
		put("supervisorNotes", *p.SupervisorNotes)
	}
	if p.RawSummary != nil {
		put("rawSummary", *p.RawSummary)
	}
	if p.ReportKind != nil {
		put("reportKind", string(*p.ReportKind))
	}
	if p.StructuredReport != nil {
		put("structuredReport", string(p.StructuredReport))
	}
	if p.ProcessingTimeMs != nil {
		put("processingTimeMs", *p.ProcessingTimeMs)
	}
	if p.ErrorMessage != nil {
		put("errorMessage", *p.ErrorMessage)
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func statusStrings(in []types.Status) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}

type mongoReportRepo struct {
	provider *db.MongoProvider
	log      *logger.Logger
	now      func() time.Time
}

// NewMongoReportRepo stores reports as documents. dbctx.Context.Tx is ignored;
// every write is a single-document atomic operation.
func NewMongoReportRepo(provider *db.MongoProvider, baseLog *logger.Logger) ReportRepo {
	return &mongoReportRepo{
		provider: provider,
		log:      baseLog.With("repo", "MongoReportRepo"),
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (r *mongoReportRepo) collection(ctx context.Context) (*mongo.Collection, error) {
	database, err := r.provider.Database(ctx)
	if err != nil {
		return nil, err
	}
	return database.Collection(reportCollection), nil
}

func ctxOf(dbc dbctx.Context) context.Context {
	if dbc.Ctx == nil {
		return context.Background()
	}
	return dbc.Ctx
}

func (r *mongoReportRepo) Create(dbc dbctx.Context, report *types.Report) (*types.Report, error) {
	if report == nil {
		return nil, errors.New("report required")
	}
	ctx := ctxOf(dbc)
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}
	now := r.now()
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	report.Status = types.StatusUploaded
	report.CreatedAt = now
	report.UpdatedAt = now
	if _, err := coll.InsertOne(ctx, toDoc(report)); err != nil {
		return nil, db.Classify(err)
	}
	return report, nil
}

func (r *mongoReportRepo) GetByID(dbc dbctx.Context, id string) (*types.Report, error) {
	reportID, ok := types.ParseID(id)
	if !ok {
		return nil, types.ErrNotFound
	}
	ctx := ctxOf(dbc)
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}
	var doc reportDoc
	if err := coll.FindOne(ctx, bson.M{"_id": reportID.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, types.ErrNotFound
		}
		return nil, db.Classify(err)
	}
	return doc.toReport(), nil
}

func (r *mongoReportRepo) Update(dbc dbctx.Context, id string, patch types.Patch) (*types.Report, error) {
	reportID, ok := types.ParseID(id)
	if !ok {
		return nil, types.ErrNotFound
	}
	return r.findAndUpdate(ctxOf(dbc), bson.M{"_id": reportID.String()}, patch, types.ErrNotFound)
}

func (r *mongoReportRepo) Transition(dbc dbctx.Context, id string, from []types.Status, staleBefore time.Time, patch types.Patch) (*types.Report, error) {
	reportID, ok := types.ParseID(id)
	if !ok {
		return nil, types.ErrNotFound
	}
	ctx := ctxOf(dbc)
	filter := bson.M{"_id": reportID.String(), "status": bson.M{"$in": statusStrings(from)}}
	if !staleBefore.IsZero() {
		filter = bson.M{
			"_id": reportID.String(),
			"$or": bson.A{
				bson.M{"status": bson.M{"$in": statusStrings(from)}},
				bson.M{
					"status":    bson.M{"$in": statusStrings([]types.Status{types.StatusAnalyzing, types.StatusProcessing})},
					"updatedAt": bson.M{"$lt": staleBefore},
				},
			},
		}
	}
	out, err := r.findAndUpdate(ctx, filter, patch, types.ErrTransitionRejected)
	if errors.Is(err, types.ErrTransitionRejected) {
		if _, gErr := r.GetByID(dbc, id); gErr != nil {
			return nil, gErr
		}
	}
	return out, err
}

func (r *mongoReportRepo) findAndUpdate(ctx context.Context, filter bson.M, patch types.Patch, missing error) (*types.Report, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc reportDoc
	err = coll.FindOneAndUpdate(ctx, filter, patchUpdate(patch, r.now()), opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, missing
		}
		return nil, db.Classify(err)
	}
	return doc.toReport(), nil
}

func (r *mongoReportRepo) Delete(dbc dbctx.Context, id string) error {
	reportID, ok := types.ParseID(id)
	if !ok {
		return types.ErrNotFound
	}
	ctx := ctxOf(dbc)
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	res, err := coll.DeleteOne(ctx, bson.M{"_id": reportID.String()})
	if err != nil {
		return db.Classify(err)
	}
	if res.DeletedCount == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *mongoReportRepo) List(dbc dbctx.Context, page, pageSize int) ([]*types.Report, int64, error) {
	ctx := ctxOf(dbc)
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, 0, err
	}
	page, pageSize = types.NormalizePage(page, pageSize)

	total, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, db.Classify(err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize)).
		SetProjection(bson.M{"rawSummary": 0})
	cur, err := coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, db.Classify(err)
	}
	defer cur.Close(ctx)

	out := []*types.Report{}
	for cur.Next(ctx) {
		var doc reportDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, err
		}
		out = append(out, doc.toReport())
	}
	if err := cur.Err(); err != nil {
		return nil, 0, db.Classify(err)
	}
	return out, total, nil
}

func (r *mongoReportRepo) Ping(ctx context.Context) error {
	database, err := r.provider.Database(ctx)
	if err != nil {
		return err
	}
	return db.Classify(database.Client().Ping(ctx, readpref.Primary()))
}
