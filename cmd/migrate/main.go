package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samirrijal/routeviz/internal/adapters/postgres"
	"github.com/samirrijal/routeviz/internal/core/domain"
	"github.com/samirrijal/routeviz/internal/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down|seed <route.json>...>")
	}

	cfg, err := config.Load("routeviz-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN(), 2)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "up":
		runMigrations(ctx, db.Pool, false)
	case "down":
		runMigrations(ctx, db.Pool, true)
	case "seed":
		if len(os.Args) < 3 {
			log.Fatal("usage: migrate seed <route.json>...")
		}
		seed(ctx, postgres.NewSegmentRepo(db), os.Args[2:])
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

// migrationFiles lists migrations/*.sql in apply order, or the
// *.down.sql files in reverse order.
func migrationFiles(down bool) ([]string, error) {
	all, err := filepath.Glob("migrations/*.sql")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, f := range all {
		if strings.HasSuffix(f, ".down.sql") == down {
			files = append(files, f)
		}
	}
	sort.Strings(files)
	if down {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}
	return files, nil
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool, down bool) {
	files, err := migrationFiles(down)
	if err != nil {
		log.Fatalf("list migrations: %v", err)
	}
	if len(files) == 0 {
		log.Fatal("no migrations found in ./migrations")
	}

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}

		_, err = pool.Exec(ctx, string(data))
		if err != nil {
			log.Fatalf("exec %s: %v", f, err)
		}

		fmt.Printf("OK  %s\n", f)
	}

	log.Println("all migrations applied")
}

// seed loads route files shaped like the POST /v1/scenes body into
// route_segments.
func seed(ctx context.Context, repo *postgres.SegmentRepo, paths []string) {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			log.Fatalf("read %s: %v", p, err)
		}
		var req domain.RouteVisualizationRequest
		if err := json.Unmarshal(data, &req); err != nil {
			log.Fatalf("decode %s: %v", p, err)
		}
		if req.RouteID == "" {
			log.Fatalf("%s: route_id is required", p)
		}
		if err := repo.ReplaceRoute(ctx, req.RouteID, req.Segments); err != nil {
			log.Fatalf("seed %s: %v", req.RouteID, err)
		}
		fmt.Printf("OK  %s (%d segments)\n", req.RouteID, len(req.Segments))
	}
}
