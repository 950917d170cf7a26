package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/app"
	"github.com/hackgods/clinic-slot-scheduling/internal/config"
	"github.com/hackgods/clinic-slot-scheduling/internal/db"
	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
	"github.com/hackgods/clinic-slot-scheduling/internal/patient"
	"github.com/hackgods/clinic-slot-scheduling/internal/rules"
	"github.com/hackgods/clinic-slot-scheduling/internal/slot"
)

var insurers = []string{
	"Blue Cross",
	"Aetna",
	"Cigna",
	"UnitedHealthcare",
	"Humana",
	"Kaiser Permanente",
}

func main() {
	patients := flag.Int("patients", 500, "number of fake patients to register")
	withRules := flag.Bool("rules", true, "insert sample rules when the rule table is empty")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	ctx = context.Background()
	gofakeit.Seed(time.Now().UnixNano())

	created, err := slot.NewPgCatalog(pool).Generate(ctx, app.Grid(cfg))
	if err != nil {
		log.Fatal("seed slots", zap.Error(err))
	}
	log.Info("slots seeded", zap.Int("created", created))

	if err := seedPatients(ctx, pool, *patients, log); err != nil {
		log.Fatal("seed patients", zap.Error(err))
	}

	if *withRules {
		if err := seedRules(ctx, rules.NewPgStore(pool), cfg.Doctors, log); err != nil {
			log.Fatal("seed rules", zap.Error(err))
		}
	}

	log.Info("seed complete")
}

func fakeProfile() patient.Profile {
	dob := gofakeit.DateRange(
		time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2010, 12, 31, 0, 0, 0, 0, time.UTC),
	)
	return patient.Profile{
		FirstName:        gofakeit.FirstName(),
		LastName:         gofakeit.LastName(),
		DateOfBirth:      dob.Format(slot.DateLayout),
		Email:            gofakeit.Email(),
		Phone:            gofakeit.Phone(),
		InsuranceCompany: insurers[gofakeit.Number(0, len(insurers)-1)],
		MemberID:         fmt.Sprintf("M%08d", gofakeit.Number(0, 99999999)),
		GroupNumber:      fmt.Sprintf("G%05d", gofakeit.Number(0, 99999)),
	}
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int, log *zap.Logger) error {
	log.Info("seeding patients", zap.Int("count", count))

	const batchSize = 500
	skipped := 0

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		dir := patient.NewPgDirectory(tx)

		for i := offset; i < end; i++ {
			p := fakeProfile()
			if p.Validate() != nil {
				skipped++
				continue
			}
			if _, err := dir.Register(ctx, p); err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
		log.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}

	if skipped > 0 {
		log.Info("skipped generated profiles that failed validation", zap.Int("skipped", skipped))
	}
	return nil
}

func seedRules(ctx context.Context, store rules.Store, doctors []string, log *zap.Logger) error {
	existing, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 || len(doctors) == 0 {
		log.Info("rule table already populated, skipping sample rules", zap.Int("rules", len(existing)))
		return nil
	}

	intake := 45
	samples := []rules.Rule{
		{
			Condition: rules.Condition{rules.ConditionPatientType: "new"},
			Action:    rules.Action{PreferDoctor: doctors[0], Duration: &intake},
			RawText:   "New patients should see " + doctors[0] + " for a 45 minute intake when possible",
		},
		{
			Condition: rules.Condition{"insurance_company": insurers[0]},
			Action:    rules.Action{BlockDoctor: doctors[len(doctors)-1]},
			RawText:   doctors[len(doctors)-1] + " does not accept " + insurers[0],
		},
	}

	for _, r := range samples {
		entry, err := store.Append(ctx, r)
		if err != nil {
			return err
		}
		log.Info("sample rule added", zap.Int("index", entry.Index), zap.String("rule", r.String()))
	}
	return nil
}
