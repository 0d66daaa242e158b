package app

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"visionctl/internal/api"
	"visionctl/internal/classify"
	"visionctl/internal/config"
	"visionctl/internal/dataset"
	"visionctl/internal/gallery"
	"visionctl/internal/model"
	"visionctl/internal/query"
	"visionctl/internal/store"
	"visionctl/internal/training"
	"visionctl/internal/ui"
)

func newDataCommand(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "data",
		Short: "Load uploaded data, training data and models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runData(cmd.Context())
		},
	}
}

func (c *console) runData(ctx context.Context) error {
	snap, err := c.svc.dataset.Refresh(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p := c.printer()
	if perr := p.snapshot(snap); perr != nil {
		return perr
	}
	if !p.structured() {
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, statusLine("Loaded", snap.Summary()))
	}
	return err
}

func newLabelsCommand(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "List the labels the service knows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			labels, err := c.svc.client.Labels(cmd.Context())
			if err != nil {
				return err
			}
			return c.printer().labels(labels)
		},
	}
}

func newUploadCommand(c *console) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "upload <image>",
		Short: "Upload a labeled image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runUpload(cmd.Context(), args[0], label)
		},
	}
	cmd.Flags().StringVarP(&label, "label", "l", "", "Label of the image (required)")
	return cmd
}

func (c *console) runUpload(ctx context.Context, path, label string) error {
	img, err := api.LoadImage(path, c.svc.client.MaxUploadBytes)
	if err != nil {
		return err
	}
	res, err := c.svc.client.Upload(ctx, api.UploadRequest{Image: img, Label: label})
	if err != nil {
		return err
	}
	if res.Filename == "" {
		res.Filename = img.Filename
	}
	if res.Label == "" {
		res.Label = strings.TrimSpace(label)
	}

	p := c.printer()
	if p.structured() {
		return p.emit(res, nil)
	}
	fmt.Fprintln(c.out, ui.Success(fmt.Sprintf("Uploaded %s as %q (image %d, %s)", res.Filename, res.Label, res.ImageID, humanize.IBytes(uint64(len(img.Data))))))
	if snap, err := c.svc.dataset.Refresh(ctx); err == nil {
		fmt.Fprintln(c.out, statusLine("Dataset", snap.Summary()))
	}
	return nil
}

func newTrainCommand(c *console) *cobra.Command {
	var all, noWait bool
	cmd := &cobra.Command{
		Use:   "train [label...]",
		Short: "Train a model on uploaded labels and follow its progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return &model.ValidationError{Field: "labels", Message: "pass labels or --all, not both"}
			}
			return c.startTraining(cmd.Context(), args, all, !noWait)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Train on every uploaded label")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Submit the job and return without following it")
	return cmd
}

func (c *console) startTraining(ctx context.Context, labels []string, all, follow bool) error {
	snap, _ := c.svc.dataset.Refresh(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if all {
		uploaded, err := snap.UploadedLabels()
		if err != nil {
			return err
		}
		if len(uploaded) == 0 {
			return &model.ValidationError{Field: "labels", Message: "no uploaded data yet, upload images first"}
		}
		labels = uploaded
	}

	ctrl := c.svc.training
	job, err := ctrl.StartTraining(ctx, labels)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, statusLine("Training", fmt.Sprintf("job %s on %s", job.ID, strings.Join(job.Labels, ", "))))
	if !follow {
		job.Cancel()
		fmt.Fprintln(c.out, styleMuted.Render("Submitted. Check progress with `visionctl status`."))
		return nil
	}

	st, err := followTraining(ctx, c.out, c.interactive(), ctrl, job)
	if err != nil {
		return err
	}
	switch st.Phase {
	case training.PhaseCompleted:
		fmt.Fprintln(c.out, ui.Success(fmt.Sprintf("Training completed in %s after %d polls", st.Elapsed(time.Now()).Round(time.Second), st.Polls)))
		fmt.Fprintln(c.out, statusLine("Dataset", c.svc.dataset.Current().Summary()))
		return nil
	case training.PhaseFailed:
		return st.Err
	default:
		return context.Canceled
	}
}

func newStatusCommand(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the service's training status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.svc.client.TrainingStatus(cmd.Context())
			if err != nil {
				return err
			}
			return c.printer().emit(st, func(w io.Writer) error {
				state := "idle"
				if st.IsTraining {
					state = "training"
				}
				fmt.Fprintf(w, "STATE\t%s\n", state)
				fmt.Fprintf(w, "PROGRESS\t%s\n", orDash(st.Progress))
				return nil
			})
		},
	}
}

func newPredictCommand(c *console) *cobra.Command {
	var noHistory bool
	cmd := &cobra.Command{
		Use:   "predict <image>",
		Short: "Classify an image and compare it with matched training images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPredict(cmd.Context(), args[0], !noHistory)
		},
	}
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the prediction in the review history")
	return cmd
}

func (c *console) runPredict(ctx context.Context, path string, record bool) error {
	img, err := api.LoadImage(path, c.svc.client.MaxUploadBytes)
	if err != nil {
		return err
	}
	snap, _ := c.svc.snapshot(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	result, err := c.svc.client.Predict(ctx, img)
	if err != nil {
		return err
	}
	if snap.Trained.Err != nil || snap.Uploaded.Err != nil {
		fmt.Fprintln(c.errOut, styleYellow.Render("warning: dataset only partly loaded, the label may show as unknown"))
	}

	verdict := classify.Interpret(result, snap.KnownLabels())
	if err := c.printer().verdict(verdict, c.svc.client.StaticImageURL); err != nil {
		return err
	}
	if !record {
		return nil
	}
	if err := c.recordVerdict(ctx, img.Filename, verdict); err != nil {
		fmt.Fprintln(c.errOut, errorLine(fmt.Errorf("history not saved: %w", err)))
	}
	return nil
}

func (c *console) recordVerdict(ctx context.Context, filename string, v classify.Verdict) error {
	st, err := c.svc.historyStore(ctx)
	if err != nil {
		return err
	}
	_, err = st.RecordPrediction(ctx, store.PredictionRecord{
		SessionID:  c.svc.session.ID,
		User:       c.svc.session.User,
		Filename:   filename,
		Label:      v.Label,
		Confidence: v.Confidence,
		Tier:       string(v.Tier),
		Matches:    len(v.Matches),
	})
	return err
}

func newImagesCommand(c *console) *cobra.Command {
	var trainedOnly bool
	var index int
	cmd := &cobra.Command{
		Use:     "images <label>",
		Aliases: []string{"gallery"},
		Short:   "Browse the stored images of a label",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runImages(cmd.Context(), args[0], trainedOnly, index)
		},
	}
	cmd.Flags().BoolVar(&trainedOnly, "trained-only", false, "Do not fall back to sample images")
	cmd.Flags().IntVar(&index, "index", 0, "Zero-based image to open first")
	return cmd
}

func (c *console) runImages(ctx context.Context, label string, trainedOnly bool, index int) error {
	label = strings.TrimSpace(label)
	refs, err := c.svc.client.LabelImages(ctx, label, trainedOnly)
	if err != nil {
		return err
	}
	cursor, err := gallery.Open(refs)
	if err != nil {
		return err
	}
	if index != 0 {
		if _, err := cursor.JumpTo(index); err != nil {
			return err
		}
	}

	p := c.printer()
	if !c.interactive() || p.structured() {
		return p.images(label, cursor.Items(), c.svc.client.StaticImageURL)
	}
	prog := tea.NewProgram(newGalleryModel(label, cursor, c.svc.client.StaticImageURL, c.svc.client.ProbeImage), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = prog.Run()
	return err
}

func newModelsCommand(c *console) *cobra.Command {
	var search, status string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List trained models, filtered by search term and status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			models, err := c.loadModels(cmd.Context(), status)
			if err != nil {
				return err
			}
			return c.printer().models(query.Filter(models, search, status))
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "Case-insensitive search over name, path, size, classes and id")
	cmd.Flags().StringVar(&status, "status", query.StatusAll, "Status filter ("+strings.Join(query.StatusFilters(), "|")+")")

	browse := &cobra.Command{
		Use:   "browse",
		Short: "Search and filter models interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runModelBrowser(cmd.Context(), search, status)
		},
	}
	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil {
				return &model.ValidationError{Field: "id", Message: fmt.Sprintf("model id must be a number, got %q", args[0])}
			}
			return c.deleteModel(cmd.Context(), id)
		},
	}
	cmd.AddCommand(browse, del)
	return cmd
}

// loadModels refreshes the dataset and returns its models section.
func (c *console) loadModels(ctx context.Context, status string) ([]model.Model, error) {
	if status != "" && !slices.Contains(query.StatusFilters(), status) {
		return nil, &model.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status filter %q, use one of %s", status, strings.Join(query.StatusFilters(), ", "))}
	}
	snap, _ := c.svc.dataset.Refresh(ctx)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if snap.Models.Err != nil {
		return nil, &dataset.FetchError{Failures: []dataset.SourceError{{Source: dataset.SourceModels, Err: snap.Models.Err}}}
	}
	return snap.Models.Items, nil
}

func (c *console) runModelBrowser(ctx context.Context, search, status string) error {
	models, err := c.loadModels(ctx, status)
	if err != nil {
		return err
	}
	if !c.interactive() {
		return c.printer().models(query.Filter(models, search, status))
	}
	prog := tea.NewProgram(newModelsModel(models, search, status), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = prog.Run()
	return err
}

func (c *console) deleteModel(ctx context.Context, id int64) error {
	if err := c.svc.client.DeleteModel(ctx, id); err != nil {
		return err
	}
	c.svc.dataset.RemoveModel(id)
	fmt.Fprintln(c.out, ui.Success(fmt.Sprintf("Deleted model %d", id)))
	return nil
}

func newHistoryCommand(c *console) *cobra.Command {
	var label string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Review past predictions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runHistory(cmd.Context(), label, limit)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Only predictions of this label")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum records to show (0 for all)")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the review history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.svc.historyStore(cmd.Context())
			if err != nil {
				return err
			}
			n, err := st.ClearPredictions(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, ui.Success(fmt.Sprintf("Removed %s records", humanize.Comma(n))))
			return nil
		},
	}
	cmd.AddCommand(clearCmd)
	return cmd
}

func (c *console) runHistory(ctx context.Context, label string, limit int) error {
	st, err := c.svc.historyStore(ctx)
	if err != nil {
		return err
	}
	opts := store.ListOptions{Label: label, Limit: limit}
	p := c.printer()
	if !c.interactive() || p.structured() {
		records, err := st.ListPredictions(ctx, opts)
		if err != nil {
			return err
		}
		return p.history(records)
	}
	load := func(ctx context.Context) ([]store.PredictionRecord, error) {
		return st.ListPredictions(ctx, opts)
	}
	prog := tea.NewProgram(newHistoryModel(load), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = prog.Run()
	return err
}

func newConfigCommand(c *console) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Show or change settings"}
	show := &cobra.Command{
		Use:   "show",
		Short: "Show effective settings and where each value comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printer().fields(c.effectiveFields())
		},
	}
	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Persist a setting to config.toml",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if err := config.ValidateField(key, value); err != nil {
				return &model.ValidationError{Field: key, Message: err.Error()}
			}
			saved, err := config.LoadFile()
			if err != nil {
				return err
			}
			config.ApplyField(&saved, key, value)
			if err := config.Save(saved); err != nil {
				return err
			}
			path, _ := config.ConfigPath()
			fmt.Fprintln(c.out, ui.Success(fmt.Sprintf("Saved %s = %s", key, value)))
			if env := config.EnvVarForField(key); env != "" {
				fmt.Fprintln(c.out, ui.Dim(fmt.Sprintf("written to %s; %s overrides it when set", path, env)))
			}
			return nil
		},
	}
	cmd.AddCommand(show, set)
	return cmd
}
