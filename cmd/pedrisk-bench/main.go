package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/ayemaqu/pedrisk/internal/artifact"
	"github.com/ayemaqu/pedrisk/internal/config"
	"github.com/ayemaqu/pedrisk/internal/schema"
	"github.com/ayemaqu/pedrisk/internal/variant"
)

func main() {
	cfgPath := flag.String("config", "", "path to config yaml (required)")
	name := flag.String("variant", "", "variant to benchmark (default: first configured)")
	n := flag.Int("n", 1000, "number of iterations")
	seed := flag.Uint64("seed", 1, "seed for generated records")
	flag.Parse()

	if *cfgPath == "" {
		log.Fatalf("config flag is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	vc := cfg.Variants[0]
	if *name != "" {
		var ok bool
		if vc, ok = cfg.Variant(*name); !ok {
			log.Fatalf("unknown variant %q", *name)
		}
	}

	pub, err := artifact.DecodePublicKey(cfg.Artifacts.ManifestPublicKey)
	if err != nil {
		log.Fatalf("manifest key: %v", err)
	}
	loader := artifact.NewLoader(artifact.Options{RuntimeDir: cfg.Artifacts.RuntimeDir, PublicKey: pub})
	defer loader.Close()

	ctx := context.Background()
	loadStart := time.Now()
	reg, err := variant.Build(ctx, []config.VariantConfig{vc}, variant.Options{Loader: loader})
	if err != nil {
		log.Fatalf("load variant: %v", err)
	}
	loadDur := time.Since(loadStart)
	v, _ := reg.Get(vc.Name)

	if *n <= 0 {
		*n = 1
	}

	// Records are drawn up front so generation stays out of the timings.
	faker := gofakeit.New(*seed)
	records := make([]schema.Record, *n)
	for i := range records {
		records[i] = randomRecord(faker, v)
	}

	// Warmup
	for i := 0; i < 5 && i < len(records); i++ {
		if _, err := reg.Predict(ctx, vc.Name, records[i]); err != nil {
			log.Fatalf("warmup predict failed: %v", err)
		}
	}

	durations := make([]time.Duration, 0, *n)
	positives := 0
	for _, rec := range records {
		start := time.Now()
		res, err := reg.Predict(ctx, vc.Name, rec)
		if err != nil {
			log.Fatalf("predict failed: %v", err)
		}
		durations = append(durations, time.Since(start))
		if res.Outcome.Positive {
			positives++
		}
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var total time.Duration
	for _, d := range durations {
		total += d
	}

	avg := float64(total.Microseconds()) / 1000.0 / float64(len(durations))
	p50 := float64(durations[len(durations)/2].Microseconds()) / 1000.0
	p95 := float64(durations[int(float64(len(durations))*0.95)].Microseconds()) / 1000.0

	fmt.Printf("bench: variant=%s version=%s rule=%s n=%d avg_ms=%.3f p50_ms=%.3f p95_ms=%.3f load_ms=%.1f positive=%d\n",
		v.Name,
		v.Version,
		v.Rule.Kind(),
		len(durations),
		avg,
		p50,
		p95,
		float64(loadDur.Microseconds())/1000.0,
		positives,
	)
}

// randomRecord draws a record inside the variant's schema, preferring the
// metadata ranges for numeric features.
func randomRecord(f *gofakeit.Faker, v *variant.Variant) schema.Record {
	rec := make(schema.Record)
	for _, feat := range v.Service.Schema().Features {
		lo, hi := 0.0, 100.0
		if feat.Min != nil {
			lo = *feat.Min
		}
		if feat.Max != nil {
			hi = *feat.Max
		}
		if r, ok := v.Bundle.Metadata.Features[feat.Name]; ok {
			lo, hi = r.Min, r.Max
		}
		switch feat.Kind {
		case schema.KindCategorical:
			rec[feat.Name] = schema.String(f.RandomString(feat.Levels))
		case schema.KindInteger:
			rec[feat.Name] = schema.Int(f.Number(int(lo), int(hi)))
		default:
			rec[feat.Name] = schema.Number(f.Float64Range(lo, hi))
		}
	}
	return rec
}
