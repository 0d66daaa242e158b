package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"visionctl/internal/classify"
	"visionctl/internal/config"
	"visionctl/internal/dataset"
	"visionctl/internal/model"
	"visionctl/internal/store"
	"visionctl/internal/ui"
)

// printer writes a value as a table, JSON or YAML.
type printer struct {
	w      io.Writer
	format string
}

func (p printer) structured() bool {
	return p.format == config.OutputJSON || p.format == config.OutputYAML
}

// emit encodes v for the structured formats and calls table otherwise.
func (p printer) emit(v any, table func(w io.Writer) error) error {
	switch p.format {
	case config.OutputJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case config.OutputYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
		if err := table(tw); err != nil {
			return err
		}
		return tw.Flush()
	}
}

type groupSectionView struct {
	Items []model.LabeledImageGroup `json:"items" yaml:"items"`
	Error string                    `json:"error,omitempty" yaml:"error,omitempty"`
}

type modelSectionView struct {
	Items []model.Model `json:"items" yaml:"items"`
	Error string        `json:"error,omitempty" yaml:"error,omitempty"`
}

type snapshotView struct {
	Generation uint64           `json:"generation" yaml:"generation"`
	FetchedAt  time.Time        `json:"fetched_at" yaml:"fetched_at"`
	Uploaded   groupSectionView `json:"uploaded" yaml:"uploaded"`
	Trained    groupSectionView `json:"trained" yaml:"trained"`
	Models     modelSectionView `json:"models" yaml:"models"`
}

func newSnapshotView(snap dataset.Snapshot) snapshotView {
	return snapshotView{
		Generation: snap.Generation,
		FetchedAt:  snap.FetchedAt,
		Uploaded:   groupSectionView{Items: snap.Uploaded.Items, Error: errString(snap.Uploaded.Err)},
		Trained:    groupSectionView{Items: snap.Trained.Items, Error: errString(snap.Trained.Err)},
		Models:     modelSectionView{Items: snap.Models.Items, Error: errString(snap.Models.Err)},
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (p printer) snapshot(snap dataset.Snapshot) error {
	return p.emit(newSnapshotView(snap), func(w io.Writer) error {
		fmt.Fprintln(w, "SOURCE\tLABEL\tIMAGES\tSAMPLES")
		writeGroups(w, dataset.SourceUploaded, snap.Uploaded)
		writeGroups(w, dataset.SourceTrained, snap.Trained)
		if snap.Models.Err != nil {
			fmt.Fprintf(w, "%s\t%s\t\t\n", dataset.SourceModels, ui.Error(snap.Models.Err.Error()))
		} else {
			fmt.Fprintf(w, "%s\t-\t%d\t\n", dataset.SourceModels, len(snap.Models.Items))
		}
		return nil
	})
}

func writeGroups(w io.Writer, source dataset.Source, section dataset.Section[model.LabeledImageGroup]) {
	if section.Err != nil {
		fmt.Fprintf(w, "%s\t%s\t\t\n", source, ui.Error(section.Err.Error()))
		return
	}
	if len(section.Items) == 0 {
		fmt.Fprintf(w, "%s\t%s\t0\t\n", source, ui.Dim("(none)"))
		return
	}
	for _, g := range section.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", source, g.Label, humanize.Comma(int64(g.Count)), strings.Join(g.SampleFiles, ", "))
	}
}

func (p printer) models(models []model.Model) error {
	if models == nil {
		models = []model.Model{}
	}
	return p.emit(models, func(w io.Writer) error {
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tACCURACY\tCLASSES\tSIZE\tCREATED")
		for _, m := range models {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				m.ID, m.Name, m.Status, formatAccuracy(m.Accuracy), strings.Join(m.Classes, ","), orDash(m.Size), orDash(m.CreatedAt))
		}
		return nil
	})
}

func formatAccuracy(acc *float64) string {
	if acc == nil {
		return "-"
	}
	return strconv.FormatFloat(*acc*100, 'f', 1, 64) + "%"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func (p printer) labels(labels []string) error {
	if labels == nil {
		labels = []string{}
	}
	return p.emit(labels, func(w io.Writer) error {
		for _, label := range labels {
			fmt.Fprintln(w, label)
		}
		return nil
	})
}

func (p printer) images(label string, refs []model.ImageRef, urlFor func(label, filename string) string) error {
	type imageView struct {
		Filename string `json:"filename" yaml:"filename"`
		Filepath string `json:"filepath" yaml:"filepath"`
		URL      string `json:"url" yaml:"url"`
	}
	views := make([]imageView, 0, len(refs))
	for _, ref := range refs {
		views = append(views, imageView{Filename: ref.Filename, Filepath: ref.Filepath, URL: urlFor(label, ref.Filename)})
	}
	return p.emit(views, func(w io.Writer) error {
		fmt.Fprintln(w, "#\tFILENAME\tURL")
		for i, v := range views {
			fmt.Fprintf(w, "%d/%d\t%s\t%s\n", i+1, len(views), v.Filename, v.URL)
		}
		return nil
	})
}

func (p printer) verdict(v classify.Verdict, urlFor func(label, filename string) string) error {
	return p.emit(v, func(w io.Writer) error {
		fmt.Fprintf(w, "%s %s\t%s\n", ui.Tier(v.Tier), ui.Bold.Render(v.Label), v.Percent())
		fmt.Fprintln(w, v.Headline)
		fmt.Fprintln(w, ui.Dim(v.Explanation))
		if len(v.Matches) == 0 {
			return nil
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "MATCH\tSIMILARITY\tFEATURES\tCOLOR\tURL")
		for _, m := range v.Matches {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Filename,
				formatScore(m.SimilarityScore), formatScore(m.FeatureSimilarity), formatScore(m.ColorSimilarity),
				urlFor(v.Label, m.Filename))
		}
		return nil
	})
}

func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return strconv.FormatFloat(*score*100, 'f', 1, 64) + "%"
}

func (p printer) history(records []store.PredictionRecord) error {
	if records == nil {
		records = []store.PredictionRecord{}
	}
	return p.emit(records, func(w io.Writer) error {
		writeHistoryTable(w, records)
		return nil
	})
}

func writeHistoryTable(w io.Writer, records []store.PredictionRecord) {
	fmt.Fprintln(w, "WHEN\tFILE\tLABEL\tCONFIDENCE\tTIER\tMATCHES")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%s\t%d\n",
			humanize.Time(rec.CreatedAt), rec.Filename, rec.Label, rec.Confidence*100, classify.Tier(rec.Tier), rec.Matches)
	}
}

func (p printer) fields(fields []config.FieldInfo) error {
	return p.emit(fields, func(w io.Writer) error {
		fmt.Fprintln(w, "KEY\tVALUE\tSOURCE\tENV")
		for _, f := range fields {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Key, orDash(f.Value), f.Source, config.EnvVarForField(f.Key))
		}
		return nil
	})
}
