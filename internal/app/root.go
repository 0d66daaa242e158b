package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"visionctl/internal/config"
)

func Execute() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := &console{cfg: cfg}
	err = newRootCommand(c).ExecuteContext(ctx)
	return errors.Join(err, c.close())
}

// console carries the effective config and the services of one run.
type console struct {
	cfg config.Config
	svc *services

	out     io.Writer
	errOut  io.Writer
	scanner *bufio.Scanner

	// historyPath overrides the review history location.
	historyPath string
	forceTTY    *bool
	flagKeys    []string
}

func (c *console) printer() printer {
	return printer{w: c.out, format: c.cfg.Output}
}

// interactive reports whether bubbletea screens can take over the terminal.
func (c *console) interactive() bool {
	if c.forceTTY != nil {
		return *c.forceTTY
	}
	return c.out == os.Stdout && isInteractiveTerminal()
}

func (c *console) effectiveFields() []config.FieldInfo {
	return config.MarkFlags(config.EffectiveFields(c.cfg), c.cfg, c.flagKeys...)
}

// close releases the services built for the run. Safe to call when the
// command never ran.
func (c *console) close() error {
	if c.svc == nil {
		return nil
	}
	err := c.svc.Close()
	c.svc = nil
	return err
}

func newRootCommand(c *console) *cobra.Command {
	cfg := c.cfg

	var (
		baseURL       string
		user          string
		output        string
		verbose       bool
		metricsListen string
	)

	root := &cobra.Command{
		Use:           "visionctl",
		Short:         "Terminal console for an image-classification service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			overrides := []struct {
				flag, key, value string
			}{
				{"api", "api.base_url", baseURL},
				{"user", "user", user},
				{"output", "output", output},
				{"metrics-listen", "metrics.listen", metricsListen},
			}
			for _, o := range overrides {
				if !flags.Changed(o.flag) {
					continue
				}
				if err := config.ValidateField(o.key, o.value); err != nil {
					return err
				}
				config.ApplyField(&c.cfg, o.key, o.value)
				c.flagKeys = append(c.flagKeys, o.key)
			}
			if flags.Changed("verbose") {
				c.cfg.Verbose = verbose
				c.flagKeys = append(c.flagKeys, "verbose")
			}

			c.out = cmd.OutOrStdout()
			c.errOut = cmd.ErrOrStderr()
			c.scanner = bufio.NewScanner(cmd.InOrStdin())
			c.svc = newServices(c.cfg, c.errOut)
			c.svc.historyPath = c.historyPath
			if addr := strings.TrimSpace(c.cfg.Metrics.Listen); addr != "" {
				bound, err := c.svc.serveMetrics(addr)
				if err != nil {
					return err
				}
				c.svc.logger.Printf("metrics on http://%s/metrics", bound)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runHome(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&baseURL, "api", cfg.API.BaseURL, "Inference service base URL")
	pf.StringVar(&user, "user", cfg.User, "User name sent with every request")
	pf.StringVarP(&output, "output", "o", cfg.Output, "Output format (table|json|yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", cfg.Verbose, "Log requests and polling to stderr")
	pf.StringVar(&metricsListen, "metrics-listen", cfg.Metrics.Listen, "Serve Prometheus metrics on host:port while running")

	root.AddCommand(
		newDataCommand(c),
		newLabelsCommand(c),
		newUploadCommand(c),
		newTrainCommand(c),
		newStatusCommand(c),
		newPredictCommand(c),
		newImagesCommand(c),
		newModelsCommand(c),
		newHistoryCommand(c),
		newConfigCommand(c),
	)
	return root
}

// runHome loops over the start menu until the user exits.
func (c *console) runHome(ctx context.Context) error {
	load := loadHomeStatus(ctx, c.svc)
	for {
		choice, err := runHomeMenu(c.scanner, c.out, c.interactive(), load)
		if err != nil {
			return err
		}
		if StartChoice(choice) == ChoiceQuit {
			fmt.Fprintln(c.out, styleMuted.Render("bye"))
			return nil
		}
		printHeader(c.out, choice)
		err = c.runChoice(ctx, StartChoice(choice))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		printFeedback(c.out, choice, err)
		fmt.Fprintln(c.out)
	}
}

func (c *console) runChoice(ctx context.Context, choice StartChoice) error {
	switch choice {
	case ChoiceDataset:
		return c.runData(ctx)
	case ChoiceUpload:
		path, err := c.prompt("Image path")
		if err != nil {
			return err
		}
		label, err := c.prompt("Label")
		if err != nil {
			return err
		}
		return c.runUpload(ctx, path, label)
	case ChoiceTrain:
		raw, err := c.prompt("Labels (comma separated, empty for all uploaded)")
		if err != nil {
			return err
		}
		labels := splitList(raw)
		return c.startTraining(ctx, labels, len(labels) == 0, true)
	case ChoicePredict:
		path, err := c.prompt("Image path")
		if err != nil {
			return err
		}
		return c.runPredict(ctx, path, true)
	case ChoiceGallery:
		label, err := c.prompt("Label")
		if err != nil {
			return err
		}
		return c.runImages(ctx, label, false, 0)
	case ChoiceModels:
		return c.runModelBrowser(ctx, "", "")
	case ChoiceHistory:
		return c.runHistory(ctx, "", 0)
	case ChoiceSettings:
		return c.printer().fields(c.effectiveFields())
	default:
		return fmt.Errorf("unknown menu choice %q", choice)
	}
}

var errNoInput = errors.New("no input")

// prompt reads one trimmed line from the command's input.
func (c *console) prompt(label string) (string, error) {
	fmt.Fprintf(c.out, "%s: ", label)
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", err
		}
		return "", errNoInput
	}
	return strings.TrimSpace(c.scanner.Text()), nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
