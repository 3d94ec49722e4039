package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/store"
)

func newCreateCmd(o *rootOptions) *cobra.Command {
	var (
		owner       string
		description string
		hypothesis  string
		testType    string
		metric      string
		control     string
		variants    []string
		contentType string
		split       string
		confidence  float64
		minSample   int64
		endsIn      time.Duration
		configFile  string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a draft test",
		Long: `Create a draft test with a control and one or more test variants.

Variants are given as NAME or NAME=CONTENT_ID. The traffic split defaults to
an even division of 100 (the control gets any remainder first).

Examples:
  variant-goat create "fall titles" --type headline --metric click_rate \
    --control "Cozy fall looks=pin-1" --variant "10 fall outfits=pin-2"
  variant-goat create "cta test" --type cta --metric conversion_rate \
    --control Shop --variant "Shop now" --variant "Get yours" --split 40,30,30
  variant-goat create "creatives" --type creative --metric cost_per_action \
    --control A --variant B --from-file variants.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := experiment.CreateTestInput{
				OwnerID:       owner,
				Name:          args[0],
				Description:   description,
				Hypothesis:    hypothesis,
				TestType:      store.TestType(testType),
				PrimaryMetric: store.Metric(metric),
				Control:       parseVariant(control, contentType),
			}
			for _, v := range variants {
				in.Variants = append(in.Variants, parseVariant(v, contentType))
			}

			if configFile != "" {
				if err := applyVariantConfigs(&in, configFile); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("confidence") {
				in.ConfidenceThreshold = &confidence
			}
			if cmd.Flags().Changed("min-sample") {
				in.MinimumSampleSize = &minSample
			}
			if split != "" {
				shares, err := parseSplit(split)
				if err != nil {
					return err
				}
				in.TrafficSplit = shares
			}
			if endsIn > 0 {
				end := time.Now().Add(endsIn)
				in.ScheduledEndAt = &end
			}

			return o.withEngine(cmd.Context(), func(e *experiment.Engine, _ store.Store) error {
				created, err := e.CreateTest(cmd.Context(), in)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created test '%s' (%s) with %d variants:\n", created.Test.Name, created.Test.ID, len(created.Variants))
				for _, v := range created.Variants {
					role := "test"
					if v.IsControl {
						role = "control"
					}
					fmt.Fprintf(out, "  %-7s  %s  %-24s %3d%%\n", role, v.ID, truncate(v.Name, 24), v.TrafficPercentage)
				}
				fmt.Fprintf(out, "Status: %s. Start it with: variant-goat start %s\n", created.Test.Status, created.Test.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner id")
	cmd.Flags().StringVar(&description, "description", "", "test description")
	cmd.Flags().StringVar(&hypothesis, "hypothesis", "", "what you expect to happen")
	cmd.Flags().StringVar(&testType, "type", "", "test type: creative, headline, description, hook, cta, audience, schedule (required)")
	cmd.Flags().StringVar(&metric, "metric", "", "primary metric: click_rate, save_rate, conversion_rate, engagement_rate, cost_per_action, return_on_spend (required)")
	cmd.Flags().StringVar(&control, "control", "", "control variant as NAME or NAME=CONTENT_ID (required)")
	cmd.Flags().StringArrayVar(&variants, "variant", nil, "test variant as NAME or NAME=CONTENT_ID (repeatable, at least one)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type of every variant, e.g. pin or ad")
	cmd.Flags().StringVar(&split, "split", "", "comma-separated traffic percentages, control first")
	cmd.Flags().Float64Var(&confidence, "confidence", experiment.DefaultConfidenceThreshold, "confidence threshold in (0, 1)")
	cmd.Flags().Int64Var(&minSample, "min-sample", experiment.DefaultMinimumSampleSize, "minimum impressions per variant")
	cmd.Flags().DurationVar(&endsIn, "ends-in", 0, "schedule an end this far from now, e.g. 336h")
	cmd.Flags().StringVar(&configFile, "from-file", "", "JSON array of variant configs, control first")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("metric")
	cmd.MarkFlagRequired("control")

	return cmd
}

// parseVariant splits NAME=CONTENT_ID.
func parseVariant(spec, contentType string) experiment.VariantInput {
	name, contentID, _ := strings.Cut(spec, "=")
	return experiment.VariantInput{
		Name:        strings.TrimSpace(name),
		ContentType: contentType,
		ContentID:   strings.TrimSpace(contentID),
	}
}

func parseSplit(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	shares := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid --split entry %q", p)
		}
		shares[i] = n
	}
	return shares, nil
}

func applyVariantConfigs(in *experiment.CreateTestInput, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read variant configs: %w", err)
	}
	var configs []store.VariantConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return fmt.Errorf("failed to parse variant configs: %w", err)
	}
	if len(configs) != len(in.Variants)+1 {
		return fmt.Errorf("%s has %d configs for %d variants", path, len(configs), len(in.Variants)+1)
	}
	in.Control.Config = configs[0]
	for i := range in.Variants {
		in.Variants[i].Config = configs[i+1]
	}
	return nil
}
