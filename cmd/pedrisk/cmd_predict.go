package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ayemaqu/pedrisk/internal/config"
	"github.com/ayemaqu/pedrisk/internal/format"
	"github.com/ayemaqu/pedrisk/internal/metadata"
	"github.com/ayemaqu/pedrisk/internal/schema"
	"github.com/ayemaqu/pedrisk/internal/variant"
)

var predictFlags struct {
	variant  string
	sets     []string
	defaults bool
	format   string
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Score one record with a configured variant",
	Example: `  pedrisk predict --variant injury --set cf1_clean="Unsafe Speed" --set hour=17 \
    --set veh_group=SUV --set BoroName=Queens
  pedrisk predict --variant species --defaults --set bill_length_mm=47`,
	RunE: runPredict,
}

func init() {
	f := predictCmd.Flags()
	f.StringVar(&predictFlags.variant, "variant", "", "Variant name (required)")
	f.StringArrayVar(&predictFlags.sets, "set", nil, "Feature assignment name=value (repeatable)")
	f.BoolVar(&predictFlags.defaults, "defaults", false, "Fill unset numeric features with their metadata defaults")
	f.StringVar(&predictFlags.format, "format", "table", "Output format: table or markdown")

	_ = predictCmd.MarkFlagRequired("variant")
}

func runPredict(cmd *cobra.Command, _ []string) error {
	mode, err := format.ParseMode(predictFlags.format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	vc, ok := cfg.Variant(predictFlags.variant)
	if !ok {
		return fmt.Errorf("%w: %q", variant.ErrUnknownVariant, predictFlags.variant)
	}

	loader, err := newLoader(cfg.Artifacts)
	if err != nil {
		return err
	}
	defer loader.Close()

	reg, err := variant.Build(cmd.Context(), []config.VariantConfig{vc}, variant.Options{Loader: loader})
	if err != nil {
		return err
	}
	v, err := reg.Get(vc.Name)
	if err != nil {
		return err
	}

	rec, err := buildRecord(v.Service.Schema(), v.Bundle.Metadata, predictFlags.sets, predictFlags.defaults)
	if err != nil {
		return err
	}
	res, err := reg.Predict(cmd.Context(), vc.Name, rec)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), format.Prediction(res, mode))
	return nil
}

// buildRecord parses name=value assignments against s. With useDefaults,
// features the metadata has a range for and that were not assigned take the
// range default.
func buildRecord(s schema.Schema, m *metadata.Metadata, sets []string, useDefaults bool) (schema.Record, error) {
	rec := make(schema.Record, len(sets))
	for _, kv := range sets {
		name, raw, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("--set %q: want name=value", kv)
		}
		f, ok := s.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("--set %q: unknown feature %q (have %s)", kv, name, strings.Join(s.Names(), ", "))
		}
		val, err := f.ParseValue(raw)
		if err != nil {
			return nil, err
		}
		rec[name] = val
	}
	if useDefaults && m != nil {
		for name, r := range m.Features {
			if _, set := rec[name]; !set {
				rec[name] = schema.Number(r.Default)
			}
		}
	}
	return rec, nil
}
