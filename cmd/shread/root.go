package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/shread/internal/batch"
	"github.com/robert-malhotra/shread/internal/product"
)

// options are the parsed command line flags.
type options struct {
	configPath string
	start      string
	end        string
	interval   string
	products   string
	overwrite  bool
}

// request is the validated form of options.
type request struct {
	configPath string
	dates      []time.Time
	products   []string
	overwrite  bool
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "shread",
		Short: "Import snow products for a drainage basin",
		Long: `shread downloads snow products, reprojects and clips them to the configured
basin, converts units and writes GeoTIFF rasters, zonal statistics tables and
STAC items to the database directory.

Products: ` + strings.Join(product.Names, ", ") + `
Intervals: day, week, biweekly, semi-month, month, year, custom:<N>d`,
		Example:       "  shread -i shread.ini -s 20200101 -e 20200107 -t day -p snodas,srpt",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.validate()
			if err != nil {
				return err
			}
			return execute(cmd.Context(), req)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "i", "", "path to the INI run configuration (required)")
	f.StringVarP(&opts.start, "start", "s", "", "start date YYYYMMDD (required)")
	f.StringVarP(&opts.end, "end", "e", "", "end date YYYYMMDD (defaults to the start date)")
	f.StringVarP(&opts.interval, "time", "t", batch.Day, "time interval between run dates")
	f.StringVarP(&opts.products, "products", "p", "", "comma separated product list (required)")
	f.BoolVar(&opts.overwrite, "overwrite", false, "re-download payloads that already exist")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("products")
	return cmd
}

// validate checks every flag and reports all problems at once.
func (o options) validate() (*request, error) {
	var errs []error
	req := &request{configPath: o.configPath, overwrite: o.overwrite}

	if _, err := os.Stat(o.configPath); err != nil {
		errs = append(errs, fmt.Errorf("config file: %w", err))
	}

	start, err := batch.ParseDate(o.start)
	if err != nil {
		errs = append(errs, fmt.Errorf("start: %w", err))
	}
	end := start
	if o.end != "" {
		if end, err = batch.ParseDate(o.end); err != nil {
			errs = append(errs, fmt.Errorf("end: %w", err))
		}
	}
	if len(errs) == 0 {
		if req.dates, err = batch.Expand(start, end, o.interval); err != nil {
			errs = append(errs, err)
		}
	}

	if req.products, err = product.ParseNames(o.products); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return req, nil
}
