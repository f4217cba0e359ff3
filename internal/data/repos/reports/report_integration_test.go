//go:build integration

package reports

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/navincodesalot/moonshot/internal/data/db"
	"github.com/navincodesalot/moonshot/internal/data/repos/testutil"
	types "github.com/navincodesalot/moonshot/internal/domain/reports"
	"github.com/navincodesalot/moonshot/internal/platform/dbctx"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) string {
	t.Helper()
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start %s: %v", req.Image, err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

func TestPostgresReportRepoContract(t *testing.T) {
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "moonshot",
			"POSTGRES_PASSWORD": "moonshot",
			"POSTGRES_DB":       "moonshot",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432")

	provider := db.NewProvider(testutil.Logger(t), db.Config{
		Driver:         db.DriverPostgres,
		PostgresDSN:    fmt.Sprintf("postgres://moonshot:moonshot@%s/moonshot?sslmode=disable", addr),
		ConnectTimeout: 10 * time.Second,
		AutoMigrate:    true,
	})
	t.Cleanup(func() { _ = provider.Close() })

	runContract(t, NewReportRepo(provider, testutil.Logger(t)))
}

func TestMongoReportRepoContract(t *testing.T) {
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(60 * time.Second),
	}, "27017")

	provider := db.NewMongoProvider(testutil.Logger(t), db.MongoConfig{
		URI:            "mongodb://" + addr,
		Database:       "moonshot_test",
		ConnectTimeout: 10 * time.Second,
	})
	t.Cleanup(func() { _ = provider.Close() })

	runContract(t, NewMongoReportRepo(provider, testutil.Logger(t)))
}

// Keys out of sorted order; a jsonb column would rewrite them.
const structuredText = `{"Scores":{"Safe_Score":"71","Prod_Score":82},"Metadata":{"Work_Description":"w"}}`

func runContract(t *testing.T, repo ReportRepo) {
	t.Helper()
	dbc := dbctx.Context{Ctx: context.Background()}

	if err := repo.Ping(dbc.Ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	created, err := repo.Create(dbc, &types.Report{SourceFileRef: "file-1", VideoFilename: "yard.mp4"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := created.ID.String()

	analyzing := types.StatusAnalyzing
	if _, err := repo.Transition(dbc, id, types.RunStartStatuses, time.Time{}, types.Patch{Status: &analyzing, ResetRun: true}); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if _, err := repo.Transition(dbc, id, types.RunStartStatuses, time.Time{}, types.Patch{Status: &analyzing}); !errors.Is(err, types.ErrTransitionRejected) {
		t.Fatalf("second Transition: want ErrTransitionRejected got=%v", err)
	}

	raw := "worker on ladder"
	complete := types.StatusComplete
	kind := types.KindActivity
	done, err := repo.Update(dbc, id, types.Patch{
		Status:           &complete,
		RawSummary:       &raw,
		ReportKind:       &kind,
		StructuredReport: []byte(structuredText),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if done.Status != types.StatusComplete || done.RawSummary == nil || *done.RawSummary != raw {
		t.Fatalf("Update result: %+v", done)
	}
	fetched, err := repo.GetByID(dbc, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if string(fetched.StructuredReport) != structuredText {
		t.Fatalf("structured report bytes: want=%s got=%s", structuredText, fetched.StructuredReport)
	}

	list, total, err := repo.List(dbc, 1, 20)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(list) != 1 || list[0].RawSummary != nil {
		t.Fatalf("List: total=%d list=%+v", total, list)
	}

	if err := repo.Delete(dbc, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(dbc, id); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("GetByID after delete: want ErrNotFound got=%v", err)
	}
}
