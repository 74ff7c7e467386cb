package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/rpattn/extmodels/internal/config"
	"github.com/rpattn/extmodels/internal/db"
	"github.com/rpattn/extmodels/internal/domain"
	"github.com/rpattn/extmodels/internal/export"
	"github.com/rpattn/extmodels/internal/extension"
	"github.com/rpattn/extmodels/internal/ingestion"
	"github.com/rpattn/extmodels/internal/registry"
	"github.com/rpattn/extmodels/internal/repository"
)

const usage = `usage: extmodels <command> [flags]

commands:
  tenant-create  create a tenant
  publish        publish a schema file as the next version for a tenant/kind
  versions       list the schema history for a tenant/kind
  deactivate     retire a schema version from latest selection
  ingest         load records from a CSV/XLSX file
  export         export records of a tenant/kind to CSV or XLSX
`

type app struct {
	tenants  repository.TenantRepository
	registry *registry.Registry
	manager  *extension.Manager
	exporter *export.Service
	ingester *ingestion.Service
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx := context.Background()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	conn, err := db.NewConnection(ctx, cfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(ctx, conn.Pool, "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	schemaRepo := repository.NewSchemaRepository(conn)
	recordRepo := repository.NewRecordRepository(conn, cfg.Extension)
	reg := registry.New(schemaRepo)
	manager := extension.NewManager(reg, recordRepo)

	a := &app{
		tenants:  repository.NewTenantRepository(conn),
		registry: reg,
		manager:  manager,
		exporter: export.NewService(reg, recordRepo),
		ingester: ingestion.NewService(manager, reg),
	}

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		log.Fatalf("%v", err)
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "tenant-create":
		return a.tenantCreate(ctx, args)
	case "publish":
		return a.publish(ctx, args)
	case "versions":
		return a.versions(ctx, args)
	case "deactivate":
		return a.deactivate(ctx, args)
	case "ingest":
		return a.ingest(ctx, args)
	case "export":
		return a.export(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) tenantCreate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tenant-create", flag.ExitOnError)
	name := fs.String("name", "", "tenant name")
	description := fs.String("description", "", "tenant description")
	fs.Parse(args)
	if *name == "" {
		return fmt.Errorf("tenant-create: -name is required")
	}

	tenant, err := a.tenants.Create(ctx, domain.NewTenant(*name, *description))
	if err != nil {
		return err
	}
	fmt.Printf("created tenant %s (%s)\n", tenant.Name, tenant.ID)
	return nil
}

func (a *app) publish(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	tenantName := fs.String("tenant", "", "tenant name")
	kind := fs.String("kind", "", "entity kind")
	file := fs.String("file", "", "path to a JSON Schema file")
	fs.Parse(args)
	if *tenantName == "" || *kind == "" || *file == "" {
		return fmt.Errorf("publish: -tenant, -kind and -file are required")
	}

	tenant, err := a.tenants.GetByName(ctx, *tenantName)
	if err != nil {
		return err
	}
	body, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	doc, err := a.registry.Publish(ctx, tenant.ID, *kind, json.RawMessage(body))
	if err != nil {
		return err
	}
	fmt.Printf("published version %d for %s/%s\n", doc.Version, tenant.Name, doc.EntityKind)
	return nil
}

func (a *app) versions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("versions", flag.ExitOnError)
	tenantName := fs.String("tenant", "", "tenant name")
	kind := fs.String("kind", "", "entity kind")
	fs.Parse(args)
	if *tenantName == "" || *kind == "" {
		return fmt.Errorf("versions: -tenant and -kind are required")
	}

	tenant, err := a.tenants.GetByName(ctx, *tenantName)
	if err != nil {
		return err
	}
	docs, err := a.registry.Versions(ctx, tenant.ID, *kind)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		status := "active"
		if !doc.IsActive {
			status = "inactive"
		}
		fmt.Printf("v%d\t%s\t%s\t%s\n", doc.Version, doc.ID, status, doc.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func (a *app) deactivate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("deactivate", flag.ExitOnError)
	id := fs.String("id", "", "schema document id")
	fs.Parse(args)

	schemaID, err := uuid.Parse(*id)
	if err != nil {
		return fmt.Errorf("deactivate: invalid -id: %w", err)
	}
	if err := a.registry.Deactivate(ctx, schemaID); err != nil {
		return err
	}
	fmt.Printf("deactivated schema %s\n", schemaID)
	return nil
}

func (a *app) ingest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	tenantName := fs.String("tenant", "", "tenant name")
	kind := fs.String("kind", "", "entity kind")
	file := fs.String("file", "", "path to a CSV or XLSX file")
	fs.Parse(args)
	if *tenantName == "" || *kind == "" || *file == "" {
		return fmt.Errorf("ingest: -tenant, -kind and -file are required")
	}

	tenant, err := a.tenants.GetByName(ctx, *tenantName)
	if err != nil {
		return err
	}
	f, err := os.Open(*file)
	if err != nil {
		return fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()

	report, err := a.ingester.Ingest(ctx, tenant.ID, *kind, *file, f)
	if err != nil {
		return err
	}
	fmt.Printf("created %d records, %d failed\n", report.Created, report.Failed)
	for _, rowErr := range report.RowErrors {
		fmt.Printf("  row %d: %s\n", rowErr.Row, rowErr.Message)
	}
	return nil
}

func (a *app) export(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	tenantName := fs.String("tenant", "", "tenant name")
	kind := fs.String("kind", "", "entity kind")
	format := fs.String("format", "csv", "output format: csv or xlsx")
	out := fs.String("out", "", "output file path")
	fs.Parse(args)
	if *tenantName == "" || *kind == "" || *out == "" {
		return fmt.Errorf("export: -tenant, -kind and -out are required")
	}

	tenant, err := a.tenants.GetByName(ctx, *tenantName)
	if err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	switch *format {
	case "csv":
		return a.exporter.WriteCSV(ctx, tenant.ID, *kind, f)
	case "xlsx":
		return a.exporter.WriteXLSX(ctx, tenant.ID, *kind, f)
	default:
		return fmt.Errorf("export: unknown format %q", *format)
	}
}
